package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type subKey struct {
	loc  string
	chat int64
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	subs   map[subKey]Subscription
	states map[string]LocationState
}

func NewMemory() *Memory {
	return &Memory{subs: map[subKey]Subscription{}, states: map[string]LocationState{}}
}

func (m *Memory) ListSubscriptions(_ context.Context, locationID string) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for k, s := range m.subs {
		if k.loc == locationID {
			out = append(out, s)
		}
	}
	sortSubs(out)
	return out, nil
}

func (m *Memory) AddSubscription(_ context.Context, sub Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[subKey{sub.LocationID, sub.ChatID}] = sub
	return nil
}

func (m *Memory) RemoveSubscription(_ context.Context, locationID string, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := subKey{locationID, chatID}
	if _, ok := m.subs[k]; !ok {
		return ErrNotFound
	}
	delete(m.subs, k)
	return nil
}

func (m *Memory) LoadStates(context.Context) ([]LocationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LocationState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	sortStates(out)
	return out, nil
}

func (m *Memory) SaveState(_ context.Context, st LocationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.LocationID] = st
	return nil
}

func (m *Memory) Close() error { return nil }

func sortSubs(s []Subscription) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].LocationID != s[j].LocationID {
			return s[i].LocationID < s[j].LocationID
		}
		return s[i].ChatID < s[j].ChatID
	})
}

func sortStates(s []LocationState) {
	sort.Slice(s, func(i, j int) bool { return s[i].LocationID < s[j].LocationID })
}
