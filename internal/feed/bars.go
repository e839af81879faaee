package feed

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one minute bar from the fixture file.
type Bar struct {
	TS     time.Time
	Symbol string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// FixtureSet is the parsed fixture data for a run plus the content hash of
// the exact bytes loaded. Rejected counts malformed or out-of-order rows that
// were skipped; they feed the run's error rate but never abort a run.
type FixtureSet struct {
	Bars     []Bar
	Hash     string
	Symbols  []string
	Rejected int
}

// LoadBars reads a CSV fixture (header ts,symbol,open,high,low,close,volume)
// and returns the usable bars. Rows that fail to parse, or whose timestamp
// moves backwards within a symbol, are counted and skipped.
func LoadBars(path string) (*FixtureSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	fs, err := ParseBars(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return fs, nil
}

// ParseBars parses fixture bytes. The hash covers the exact bytes given,
// truncated sha256, so any content change yields a different DeterminismKey.
func ParseBars(raw []byte) (*FixtureSet, error) {
	sum := sha256.Sum256(raw)
	fs := &FixtureSet{Hash: hex.EncodeToString(sum[:])[:12]}

	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty fixture file")
	}

	lastTS := map[string]time.Time{}
	seen := map[string]bool{}
	for _, rec := range records[1:] { // skip header
		bar, err := parseRow(rec)
		if err != nil {
			fs.Rejected++
			continue
		}
		if prev, ok := lastTS[bar.Symbol]; ok && bar.TS.Before(prev) {
			// out-of-order within symbol
			fs.Rejected++
			continue
		}
		lastTS[bar.Symbol] = bar.TS
		if !seen[bar.Symbol] {
			seen[bar.Symbol] = true
			fs.Symbols = append(fs.Symbols, bar.Symbol)
		}
		fs.Bars = append(fs.Bars, bar)
	}
	sort.Strings(fs.Symbols)
	if len(fs.Bars) == 0 {
		return nil, fmt.Errorf("fixture file has no usable bars (%d rejected)", fs.Rejected)
	}
	return fs, nil
}

func parseRow(rec []string) (Bar, error) {
	var b Bar
	if len(rec) < 7 {
		return b, fmt.Errorf("want 7 fields, got %d", len(rec))
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
	if err != nil {
		return b, err
	}
	sym := strings.ToUpper(strings.TrimSpace(rec[1]))
	if sym == "" {
		return b, fmt.Errorf("empty symbol")
	}
	fields := make([]decimal.Decimal, 5)
	for i, s := range rec[2:7] {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return b, err
		}
		fields[i] = d
	}
	b.TS = ts
	b.Symbol = sym
	b.Open, b.High, b.Low, b.Close, b.Volume = fields[0], fields[1], fields[2], fields[3], fields[4]
	return b, nil
}
