package pkg

import (
	"context"
	"sync"
)

// KeyedMutex 按 key 加锁：同一个 key 串行，不同 key 互不影响。
// 每个 key 的锁是容量为 1 的 channel，等待时可以被 ctx 取消。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[uint64]*keyedEntry{}}
}

// Lock 获取 key 的锁，返回的 unlock 必须且只能调用一次
func (m *KeyedMutex) Lock(ctx context.Context, key uint64) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *KeyedMutex) release(key uint64, e *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// Len 当前持有或等待中的 key 数量
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
