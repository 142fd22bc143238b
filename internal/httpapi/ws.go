package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/protocol"
	"github.com/ent0n29/aspbot/internal/rag"
	"github.com/ent0n29/aspbot/internal/voice"
)

// handleInteractWS runs interactions for one websocket connection, one at a
// time, streaming a stage_event per finished stage before the final message.
func (s *Server) handleInteractWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan protocol.InteractRequest, 4)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	go func() {
		defer close(runDone)
		for req := range requests {
			s.runWSInteraction(ctx, req, send)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.log.Debug("websocket write failed", zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_request",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}
		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.Action == "close" {
				break readLoop
			}
		case protocol.InteractRequest:
			select {
			case <-ctx.Done():
				break readLoop
			case requests <- msg:
			}
		}
	}

	close(requests)
	<-runDone
	// Nothing sends any more; the writer flushes what is queued and exits.
	close(outbound)
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

func (s *Server) runWSInteraction(ctx context.Context, req protocol.InteractRequest, send func(any)) {
	res, err := s.interact(ctx, req.AudioData, func(ev voice.StageEvent) {
		send(protocol.StageEvent{
			Type:      protocol.TypeStageEvent,
			RequestID: req.RequestID,
			SessionID: ev.SessionID,
			Stage:     ev.Stage,
			ElapsedMS: ev.Elapsed.Milliseconds(),
			Detail:    stageDetail(ev.Detail),
		})
	})
	if err != nil {
		_, code := classifyError(err)
		ev := protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			RequestID: req.RequestID,
			Code:      code,
			Detail:    errorMessage(err),
		}
		var stageErr *voice.StageError
		if errors.As(err, &stageErr) {
			ev.SessionID = stageErr.SessionID
			ev.Source = stageErr.Stage
		}
		ev.Retryable = code == "unavailable" || errors.Is(err, context.DeadlineExceeded)
		send(ev)
		return
	}
	send(protocol.InteractionResult{
		Type:             protocol.TypeInteractionResult,
		RequestID:        req.RequestID,
		WakeWordDetected: res.WakeWordDetected,
		Transcription:    res.Transcription,
		Answer:           res.Answer,
		AudioResponse:    res.AudioResponse,
		SessionID:        res.SessionID,
	})
}

// stageDetail keeps stage events small: audio is reported by size only.
func stageDetail(detail any) any {
	switch d := detail.(type) {
	case voice.DetectionResult, voice.TranscriptionResult:
		return d
	case rag.Result:
		return map[string]any{"fallback": d.IsFallback(), "passages": len(d.Passages)}
	case int:
		return map[string]any{"audio_bytes": d}
	default:
		return nil
	}
}
