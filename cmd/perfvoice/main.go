package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/auth"
	"github.com/ent0n29/aspbot/internal/protocol"
)

type options struct {
	baseURL        string
	apiKey         string
	token          string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type ttsRequest struct {
	Text string `json:"text"`
}

type ttsResponse struct {
	AudioData []byte `json:"audio_data"`
}

type audioClip struct {
	Text string
	WAV  []byte
}

// turnResult is what the server streamed back for one interaction.
type turnResult struct {
	Stages   map[string]time.Duration
	Total    time.Duration
	WakeWord bool
	Answer   string
}

var defaultUtterances = []string{
	"Здравей АСП, какви услуги предлагате?",
	"Здравей АСП, какво е работното време?",
	"Здравей АСП, как да подам заявление?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8000", "aspbot base URL")
	flag.StringVar(&cfg.apiKey, "api-key", os.Getenv("API_KEY"), "API key sent as "+auth.APIKeyHeader)
	flag.StringVar(&cfg.token, "token", "", "bearer token (used instead of -api-key)")
	flag.IntVar(&cfg.turns, "turns", 10, "number of interactions to replay")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between interactions in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for interaction_result in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	cfg.texts = splitTexts(textsRaw)
	if len(cfg.texts) == 0 {
		return options{}, fmt.Errorf("texts produced no non-empty utterances")
	}
	return cfg, nil
}

func splitTexts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...)
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	clips, err := synthClips(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("prepare utterance audio: %w", err)
	}

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, authHeader(cfg))
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		clip := clips[i%len(clips)]
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d/%d text=%q bytes=%d\n", i+1, cfg.turns, clip.Text, len(clip.WAV))
		}
		res, err := runTurn(conn, fmt.Sprintf("turn-%d", i+1), clip, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d wake=%v total=%s answer=%q\n", i+1, res.WakeWord, res.Total.Round(time.Millisecond), res.Answer)
		}
		results = append(results, res)
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	_ = conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: "close"})
	printSummary(os.Stdout, results)
	return nil
}

func authHeader(cfg options) http.Header {
	h := http.Header{}
	switch {
	case strings.TrimSpace(cfg.token) != "":
		h.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.token))
	case strings.TrimSpace(cfg.apiKey) != "":
		h.Set(auth.APIKeyHeader, strings.TrimSpace(cfg.apiKey))
	}
	return h
}

func synthClips(ctx context.Context, client *http.Client, cfg options) ([]audioClip, error) {
	cache := make(map[string]audioClip, len(cfg.texts))
	out := make([]audioClip, 0, len(cfg.texts))
	for _, text := range cfg.texts {
		if existing, ok := cache[text]; ok {
			out = append(out, existing)
			continue
		}
		clip, err := synthClip(ctx, client, cfg, text)
		if err != nil {
			return nil, err
		}
		cache[text] = clip
		out = append(out, clip)
	}
	return out, nil
}

// synthClip asks the server itself to speak text, so the replay needs no recordings.
func synthClip(ctx context.Context, client *http.Client, cfg options, text string) (audioClip, error) {
	payload, err := json.Marshal(ttsRequest{Text: text})
	if err != nil {
		return audioClip{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/v1/tts", bytes.NewReader(payload))
	if err != nil {
		return audioClip{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range authHeader(cfg) {
		req.Header[k] = v
	}

	res, err := client.Do(req)
	if err != nil {
		return audioClip{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return audioClip{}, err
	}
	if res.StatusCode != http.StatusOK {
		return audioClip{}, fmt.Errorf("tts %q HTTP %d: %s", text, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ttsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return audioClip{}, fmt.Errorf("decode tts response for %q: %w", text, err)
	}
	pcm, _, err := audio.DecodeWAV(out.AudioData)
	if err != nil {
		return audioClip{}, fmt.Errorf("decode tts wav for %q: %w", text, err)
	}
	if len(pcm) == 0 {
		return audioClip{}, fmt.Errorf("tts wav for %q produced no PCM bytes", text)
	}
	return audioClip{Text: text, WAV: out.AudioData}, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/interact/ws"
	return u.String(), nil
}

type wsEnvelope struct {
	Type             string  `json:"type"`
	RequestID        string  `json:"request_id"`
	Stage            string  `json:"stage"`
	ElapsedMS        int64   `json:"elapsed_ms"`
	WakeWordDetected bool    `json:"wake_word_detected"`
	Answer           *string `json:"answer"`
	Code             string  `json:"code"`
	Detail           string  `json:"detail"`
}

func runTurn(conn *websocket.Conn, requestID string, clip audioClip, timeout time.Duration) (turnResult, error) {
	start := time.Now()
	if err := conn.WriteJSON(protocol.InteractRequest{
		Type:      protocol.TypeInteractRequest,
		RequestID: requestID,
		AudioData: clip.WAV,
	}); err != nil {
		return turnResult{}, fmt.Errorf("send interact_request: %w", err)
	}

	res := turnResult{Stages: make(map[string]time.Duration)}
	_ = conn.SetReadDeadline(start.Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return turnResult{}, fmt.Errorf("await interaction_result: %w", err)
		}
		if env.RequestID != "" && env.RequestID != requestID {
			continue
		}
		switch protocol.MessageType(env.Type) {
		case protocol.TypeStageEvent:
			res.Stages[env.Stage] = time.Duration(env.ElapsedMS) * time.Millisecond
		case protocol.TypeInteractionResult:
			res.Total = time.Since(start)
			res.WakeWord = env.WakeWordDetected
			if env.Answer != nil {
				res.Answer = *env.Answer
			}
			return res, nil
		case protocol.TypeErrorEvent:
			return turnResult{}, fmt.Errorf("error_event code=%s detail=%s", env.Code, env.Detail)
		}
	}
}

// percentile returns the nearest-rank q-quantile of sorted durations.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printSummary(w io.Writer, results []turnResult) {
	series := map[string][]time.Duration{}
	for _, r := range results {
		series["total"] = append(series["total"], r.Total)
		for stage, d := range r.Stages {
			series[stage] = append(series[stage], d)
		}
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "%-12s %6s %10s %10s %10s\n", "stage", "n", "p50", "p95", "max")
	for _, name := range names {
		s := series[name]
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
		fmt.Fprintf(w, "%-12s %6d %10s %10s %10s\n", name, len(s),
			percentile(s, 0.50).Round(time.Millisecond),
			percentile(s, 0.95).Round(time.Millisecond),
			s[len(s)-1].Round(time.Millisecond))
	}
}
