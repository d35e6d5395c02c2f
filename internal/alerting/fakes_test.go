package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// memStore is an in-memory LogStore, RuleStore, ActionStore and WindowCounter.
type memStore struct {
	mu      sync.Mutex
	logs    []*models.Log
	rules   []*models.MonitoringRule
	actions map[string][]*models.Action

	countErr error
	marks    int
}

func newMemStore() *memStore {
	return &memStore{actions: make(map[string][]*models.Action)}
}

func (s *memStore) ListUnprocessed(context.Context) ([]*models.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Log
	for _, l := range s.logs {
		if !l.Processed {
			cp := *l
			out = append(out, &cp)
		}
	}
	// stable insertion sort, oldest first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Timestamp.Before(out[j-1].Timestamp); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *memStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			if l.Processed {
				return false, nil
			}
			l.Processed = true
			s.marks++
			return true, nil
		}
	}
	return false, errors.New("log not found")
}

func (s *memStore) CountInWindow(_ context.Context, kind models.LogKind, start, end time.Time, f models.WindowFilter) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.logs {
		if kind != "" && l.Kind != kind {
			continue
		}
		if l.Timestamp.Before(start) || l.Timestamp.After(end) {
			continue
		}
		if len(f.ErrorCodes) > 0 && !contains(f.ErrorCodes, l.ErrorCode) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, l.Status) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *memStore) ListEnabled(context.Context) ([]*models.MonitoringRule, error) {
	var out []*models.MonitoringRule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListEnabledForRule(_ context.Context, ruleID string) ([]*models.Action, error) {
	var out []*models.Action
	for _, a := range s.actions[ruleID] {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) addLog(l *models.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
}

func (s *memStore) processed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			return l.Processed
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

type dispatchCall struct {
	ActionID string
	LogID    string
}

// recordingDispatcher records calls and returns ok.
type recordingDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	ok      bool
	panicOn string
}

func (d *recordingDispatcher) ExecuteAction(_ context.Context, a *models.Action, l *models.Log) bool {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{ActionID: a.ID, LogID: l.ID})
	d.mu.Unlock()
	if a.ID == d.panicOn {
		panic("handler exploded")
	}
	return d.ok
}

func intp(n int) *int { return &n }
