package lock

import (
	"context"
	"sync"

	"github.com/rl1809/branch-delivery/internal/port"
)

// LocalLocker is an in-process ItemLocker. Keys are dropped on unlock so the
// held set only ever contains in-flight writers.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ port.ItemLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
