package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"quant-council/internal/types"
)

type summaryRow struct {
	Symbol        string
	Cycles        int
	Long          int
	Short         int
	Flat          int
	Vetoes        int
	Corrections   int
	Submitted     int
	ConfidenceSum float64
}

func (s *Store) summaryCSVPath(t time.Time) string {
	return filepath.Join(s.dir, "summary", t.UTC().Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates one UTC day of cycle records into a per-symbol CSV.
// Returns the written path, or "" when the day has no records.
func (s *Store) SummarizeDay(t time.Time) (string, error) {
	recs, err := s.ReadDay(t)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}

	rows := map[string]*summaryRow{}
	for _, rec := range recs {
		row := rows[rec.Symbol]
		if row == nil {
			row = &summaryRow{Symbol: rec.Symbol}
			rows[rec.Symbol] = row
		}
		row.Cycles++
		row.ConfidenceSum += rec.Audit.FinalConfidence
		row.Corrections += len(rec.Audit.Corrections)
		if rec.Audit.Vetoed {
			row.Vetoes++
		}
		switch rec.Audit.FinalAction {
		case types.ActionLong:
			row.Long++
		case types.ActionShort:
			row.Short++
		default:
			row.Flat++
		}
		if rec.Receipt != nil && !rec.Receipt.Duplicate {
			row.Submitted++
		}
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := s.summaryCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "cycles", "long", "short", "flat", "vetoes", "corrections", "submitted", "avg_confidence"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, k := range keys {
		r := rows[k]
		avg := 0.0
		if r.Cycles > 0 {
			avg = r.ConfidenceSum / float64(r.Cycles)
		}
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Cycles),
			strconv.Itoa(r.Long),
			strconv.Itoa(r.Short),
			strconv.Itoa(r.Flat),
			strconv.Itoa(r.Vetoes),
			strconv.Itoa(r.Corrections),
			strconv.Itoa(r.Submitted),
			fmt.Sprintf("%.3f", avg),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	return outPath, nil
}

// SummarizeYesterday runs the daily rollup for the completed UTC day.
func (s *Store) SummarizeYesterday() (string, error) {
	return s.SummarizeDay(s.now().UTC().AddDate(0, 0, -1))
}
