package audit

import (
	"context"
	"sync"

	"github.com/jwalitptl/account-security/internal/model"
)

// AsyncLogger records events off the request path. Close waits for
// in-flight writes.
type AsyncLogger struct {
	service *Service
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

func NewAsyncLogger(service *Service) *AsyncLogger {
	return &AsyncLogger{
		service: service,
	}
}

// Log schedules entry. The write outlives ctx cancellation.
func (l *AsyncLogger) Log(ctx context.Context, entry model.ActivityEntry) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.service.RecordBestEffort(context.WithoutCancel(ctx), entry)
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		l.service.RecordBestEffort(context.WithoutCancel(ctx), entry)
	}()
}

func (l *AsyncLogger) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}
