package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quant-council/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	s.now = func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }
	return s
}

func record(id int64, symbol string, action types.Action) types.CycleRecord {
	return types.CycleRecord{
		SnapshotID: id,
		Symbol:     symbol,
		Audit: types.AuditResult{
			SnapshotID:      id,
			Symbol:          symbol,
			FinalAction:     action,
			FinalConfidence: 0.5,
		},
	}
}

func TestPersistIsAppendOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := s.Persist(ctx, record(i, "BTCUSDT", types.ActionFlat)); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
	}

	recs, err := s.ReadDay(s.now())
	if err != nil {
		t.Fatalf("read day: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.SnapshotID != int64(i+1) {
			t.Errorf("record %d: expected snapshot id %d, got %d", i, i+1, rec.SnapshotID)
		}
	}
}

func TestPersistHonorsCancelledContext(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Persist(ctx, record(1, "BTCUSDT", types.ActionFlat)); err == nil {
		t.Error("cancelled context should abort the publish")
	}
	recs, _ := s.ReadDay(s.now())
	if len(recs) != 0 {
		t.Errorf("aborted publish must leave nothing behind, found %d records", len(recs))
	}
}

func TestReadDayMissingFileIsEmpty(t *testing.T) {
	s := testStore(t)
	recs, err := s.ReadDay(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || recs != nil {
		t.Errorf("missing day should read empty, got %d records err=%v", len(recs), err)
	}
}

func TestSummarizeDay(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	long := record(1, "BTCUSDT", types.ActionLong)
	long.Receipt = &types.OrderReceipt{OrderID: "a", SnapshotID: 1, Status: "FILLED"}
	vetoed := record(2, "BTCUSDT", types.ActionFlat)
	vetoed.Audit.Vetoed = true
	for _, rec := range []types.CycleRecord{long, vetoed, record(3, "ETHUSDT", types.ActionShort)} {
		if err := s.Persist(ctx, rec); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	path, err := s.SummarizeDay(s.now())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	got := string(b)
	want := "symbol,cycles,long,short,flat,vetoes,corrections,submitted,avg_confidence\n" +
		"BTCUSDT,2,1,0,1,1,0,1,0.500\n" +
		"ETHUSDT,1,0,1,0,0,0,0,0.500\n"
	if got != want {
		t.Errorf("summary mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSummarizeEmptyDayWritesNothing(t *testing.T) {
	s := testStore(t)
	path, err := s.SummarizeDay(s.now())
	if err != nil || path != "" {
		t.Errorf("empty day should produce no summary, got path=%q err=%v", path, err)
	}
}

func TestCompressOlderGzipsOldDays(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	old := filepath.Join(dir, "2024-01-01.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if err := s.CompressOlder(7); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old plain file should be removed after compression")
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("expected gzip next to old file: %v", err)
	}
}
