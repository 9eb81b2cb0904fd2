package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quant-council/internal/interfaces"
	"quant-council/internal/types"
)

// Store persists cycle records as one JSON line per cycle in append-only
// daily files. Records are never rewritten; a fresh observation of the same
// market state is a new record under a new snapshot id. Crypto trades around
// the clock, so days roll over in UTC.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ interfaces.Archiver = (*Store)(nil)

func NewStore(dir string) *Store {
	if dir == "" {
		if v := os.Getenv("ARCHIVE_DIR"); v != "" {
			dir = v
		} else {
			dir = "archive"
		}
	}
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) dailyFilepath(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format("2006-01-02")+".jsonl")
}

// Persist appends the record to today's file. The single write keeps the
// publish atomic: either the full lineage lands or nothing does.
func (s *Store) Persist(ctx context.Context, rec types.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.dailyFilepath(s.now())
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay loads every record archived on the given UTC day, in append order.
func (s *Store) ReadDay(t time.Time) ([]types.CycleRecord, error) {
	f, err := os.Open(s.dailyFilepath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return decodeRecords(f)
}

func decodeRecords(r io.Reader) ([]types.CycleRecord, error) {
	var recs []types.CycleRecord
	dec := json.NewDecoder(r)
	for dec.More() {
		var rec types.CycleRecord
		if err := dec.Decode(&rec); err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// CompressOlder gzips daily files older than retentionDays. Already
// compressed days only lose their plain-text original.
func (s *Store) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(s.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
