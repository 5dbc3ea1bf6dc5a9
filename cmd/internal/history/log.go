package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Log is the in-memory projection of the latest history page.
// A failed refresh keeps the previous items.
type Log struct {
	reader   Reader
	limit    int
	log      *slog.Logger
	onChange func([]Exchange)

	mu          sync.RWMutex
	items       []Exchange
	refreshedAt time.Time
	lastErr     error
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithLimit sets the page size (default DefaultLimit).
func WithLimit(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) LogOption {
	return func(l *Log) {
		if log != nil {
			l.log = log
		}
	}
}

// WithOnChange registers fn to run after every successful refresh.
func WithOnChange(fn func([]Exchange)) LogOption {
	return func(l *Log) { l.onChange = fn }
}

// NewLog returns an empty Log backed by r.
func NewLog(r Reader, opts ...LogOption) *Log {
	l := &Log{reader: r, limit: DefaultLimit, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Refresh replaces the items with the newest page from the reader.
func (l *Log) Refresh(ctx context.Context) error {
	if l == nil || l.reader == nil {
		return errors.New("history: nil reader")
	}

	items, err := l.reader.ListHistory(ctx, 0, l.limit)
	if err != nil {
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
		l.log.Warn("history.refresh.fail", "err", err)
		return err
	}

	l.mu.Lock()
	l.items = items
	l.refreshedAt = time.Now().UTC()
	l.lastErr = nil
	l.mu.Unlock()

	l.log.Debug("history.refresh", "items", len(items))
	if l.onChange != nil {
		l.onChange(l.Items())
	}
	return nil
}

// Items returns a copy of the current page, newest first.
func (l *Log) Items() []Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Exchange(nil), l.items...)
}

// Get returns the i-th item (0 = newest).
func (l *Log) Get(i int) (Exchange, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return Exchange{}, false
	}
	return l.items[i], true
}

// RefreshedAt returns when the last successful refresh finished.
func (l *Log) RefreshedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.refreshedAt
}

// Err returns the error of the last refresh, or nil if it succeeded.
func (l *Log) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}
