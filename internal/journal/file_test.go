package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "pacekit/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) must return nil store", driver)
		}
	}

	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must fail")
	}
}

func TestFileStoreAppend(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "journal")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now()
	ctx := context.Background()
	if err := st.AppendExecution(ctx, Entry{
		At:          now,
		Limiter:     "upstream",
		Priority:    true,
		QueuedAt:    now.Add(-120 * time.Millisecond),
		WaitMS:      120,
		WindowCount: 3,
	}); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}
	if err := st.AppendReset(ctx, ResetEntry{At: now, Limiter: "upstream", RequestsMade: 7}); err != nil {
		t.Fatalf("AppendReset: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "journal.executions.jsonl"))
	if err != nil {
		t.Fatalf("open executions: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("executions journal is empty")
	}
	var rec execRecord
	if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Limiter != "upstream" || !rec.Priority || rec.WaitMS != 120 || rec.WindowCount != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// Closed store rejects writes.
	if err := st.AppendExecution(ctx, Entry{At: now, Limiter: "x"}); err == nil {
		t.Fatal("append after close must fail")
	}
}
