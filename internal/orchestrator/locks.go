package orchestrator

import "sync"

// strategyLocks serializes writers per strategy. Different strategies never
// contend with each other. An entry lives only while someone holds or waits
// for it.
type strategyLocks struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newStrategyLocks() *strategyLocks {
	return &strategyLocks{locks: make(map[int64]*refLock)}
}

// lock acquires the strategy's lock and returns its release func
func (l *strategyLocks) lock(strategyID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[strategyID]
	if !ok {
		m = &refLock{}
		l.locks[strategyID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, strategyID)
		}
		l.mu.Unlock()
	}
}

// size reports how many strategies currently have a lock entry
func (l *strategyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
