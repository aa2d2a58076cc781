package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "powerwatch/pkg/logx"
)

// fileStore keeps everything in memory and persists it as
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	mem          *Memory
	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int
}

type snapshot struct {
	Subscriptions []Subscription  `json:"subscriptions"`
	States        []LocationState `json:"states"`
}

type journalRecord struct {
	Op    string         `json:"op"` // "sub", "unsub", "state"
	Sub   *Subscription  `json:"sub,omitempty"`
	State *LocationState `json:"state,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		mem:          NewMemory(),
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 200,
	}
	journalPath := prefix + ".journal.jsonl"
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := s.replay(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage journal replay failed", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) ListSubscriptions(ctx context.Context, locationID string) ([]Subscription, error) {
	return s.mem.ListSubscriptions(ctx, locationID)
}

func (s *fileStore) LoadStates(ctx context.Context) ([]LocationState, error) {
	return s.mem.LoadStates(ctx)
}

func (s *fileStore) AddSubscription(ctx context.Context, sub Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.AddSubscription(ctx, sub)
	return s.appendLocked(journalRecord{Op: "sub", Sub: &sub})
}

func (s *fileStore) RemoveSubscription(ctx context.Context, locationID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.RemoveSubscription(ctx, locationID, chatID); err != nil {
		return err
	}
	return s.appendLocked(journalRecord{Op: "unsub", Sub: &Subscription{LocationID: locationID, ChatID: chatID}})
}

func (s *fileStore) SaveState(ctx context.Context, st LocationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.mem.SaveState(ctx, st)
	return s.appendLocked(journalRecord{Op: "state", State: &st})
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return errors.New("storage journal closed")
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("storage compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) apply(r journalRecord) {
	ctx := context.Background()
	switch r.Op {
	case "sub":
		if r.Sub != nil {
			_ = s.mem.AddSubscription(ctx, *r.Sub)
		}
	case "unsub":
		if r.Sub != nil {
			_ = s.mem.RemoveSubscription(ctx, r.Sub.LocationID, r.Sub.ChatID)
		}
	case "state":
		if r.State != nil {
			_ = s.mem.SaveState(ctx, *r.State)
		}
	}
}

func (s *fileStore) compactLocked() error {
	var snap snapshot
	s.mem.mu.Lock()
	for _, sub := range s.mem.subs {
		snap.Subscriptions = append(snap.Subscriptions, sub)
	}
	for _, st := range s.mem.states {
		snap.States = append(snap.States, st)
	}
	s.mem.mu.Unlock()
	sortSubs(snap.Subscriptions)
	sortStates(snap.States)

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for i := range snap.Subscriptions {
		s.apply(journalRecord{Op: "sub", Sub: &snap.Subscriptions[i]})
	}
	for i := range snap.States {
		s.apply(journalRecord{Op: "state", State: &snap.States[i]})
	}
	return nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		s.apply(r)
	}
	return sc.Err()
}
