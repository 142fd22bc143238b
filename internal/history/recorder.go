package history

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder writes records in the background so callers never wait on storage.
type Recorder struct {
	store   Store
	timeout time.Duration
	onFail  func()
	log     *zap.Logger
	pending chan struct{}
}

// NewRecorder bounds concurrent writes; records beyond the bound are dropped.
// onFail runs once per dropped or failed write.
func NewRecorder(store Store, timeout time.Duration, onFail func(), log *zap.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if onFail == nil {
		onFail = func() {}
	}
	return &Recorder{store: store, timeout: timeout, onFail: onFail, log: log, pending: make(chan struct{}, 64)}
}

// Record saves r asynchronously.
func (r *Recorder) Record(rec Record) {
	if r == nil || r.store == nil {
		return
	}
	select {
	case r.pending <- struct{}{}:
	default:
		r.log.Warn("history backlog full, dropping record", zap.String("session_id", rec.SessionID))
		r.onFail()
		return
	}
	go func() {
		defer func() { <-r.pending }()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.Save(ctx, rec); err != nil {
			r.log.Warn("history write failed", zap.String("session_id", rec.SessionID), zap.Error(err))
			r.onFail()
		}
	}()
}

// Flush waits until in-flight writes finish or ctx ends.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for i := 0; i < cap(r.pending); i++ {
		select {
		case r.pending <- struct{}{}:
		case <-ctx.Done():
			for ; i > 0; i-- {
				<-r.pending
			}
			return ctx.Err()
		}
	}
	for i := 0; i < cap(r.pending); i++ {
		<-r.pending
	}
	return nil
}
