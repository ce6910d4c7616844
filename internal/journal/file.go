package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pacekit/pkg/logx"
)

// fileStore is a dependency-free journal backend.
//
// Files:
//   - <prefix>.executions.jsonl (append-only JSON Lines)
//   - <prefix>.resets.jsonl     (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	execFile  *os.File
	resetFile *os.File
}

type execRecord struct {
	At          string `json:"at"`
	Limiter     string `json:"limiter"`
	Priority    bool   `json:"priority,omitempty"`
	QueuedAt    string `json:"queued_at,omitempty"`
	WaitMS      int64  `json:"wait_ms"`
	WindowCount int    `json:"window_count,omitempty"`
}

type resetRecord struct {
	At           string `json:"at"`
	Limiter      string `json:"limiter"`
	RequestsMade int    `json:"requests_made"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	ef, err := os.OpenFile(prefix+".executions.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(prefix+".resets.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = ef.Close()
		return nil, err
	}

	return &fileStore{log: log, execFile: ef, resetFile: rf}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.execFile != nil {
		err1 = s.execFile.Close()
		s.execFile = nil
	}
	if s.resetFile != nil {
		err2 = s.resetFile.Close()
		s.resetFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendExecution(ctx context.Context, e Entry) error {
	_ = ctx
	rec := execRecord{
		At:          e.At.Format(timeFormat),
		Limiter:     e.Limiter,
		Priority:    e.Priority,
		WaitMS:      e.WaitMS,
		WindowCount: e.WindowCount,
	}
	if !e.QueuedAt.IsZero() {
		rec.QueuedAt = e.QueuedAt.Format(timeFormat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execFile == nil {
		return errors.New("execution journal closed")
	}
	return json.NewEncoder(s.execFile).Encode(rec)
}

func (s *fileStore) AppendReset(ctx context.Context, e ResetEntry) error {
	_ = ctx
	rec := resetRecord{
		At:           e.At.Format(timeFormat),
		Limiter:      e.Limiter,
		RequestsMade: e.RequestsMade,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetFile == nil {
		return errors.New("reset journal closed")
	}
	return json.NewEncoder(s.resetFile).Encode(rec)
}

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
