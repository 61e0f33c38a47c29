package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// ErrNoData is returned when the configured window matches no rows.
var ErrNoData = fmt.Errorf("backtest: no data loaded for configured window")

// LoadCSV reads a market-data file with columns
// timestamp,symbol,bid,ask,last,volume and returns per-symbol series sorted
// by timestamp. start/end bound the window when non-zero; rows outside are
// dropped. Timestamps are unix seconds or RFC3339.
func LoadCSV(path string, start, end time.Time) (map[string][]types.MarketTick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	r.TrimLeadingSpace = true

	series := make(map[string][]types.MarketTick)
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: read %s: %w", path, err)
		}
		line++
		if line == 1 && rec[0] == "timestamp" {
			continue // header
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: %w", line, err)
		}
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}

		tick := types.MarketTick{Ts: ts, Symbol: rec[1]}
		if tick.Bid, err = decimal.NewFromString(rec[2]); err != nil {
			return nil, fmt.Errorf("backtest: row %d bid: %w", line, err)
		}
		if tick.Ask, err = decimal.NewFromString(rec[3]); err != nil {
			return nil, fmt.Errorf("backtest: row %d ask: %w", line, err)
		}
		if tick.Last, err = decimal.NewFromString(rec[4]); err != nil {
			return nil, fmt.Errorf("backtest: row %d last: %w", line, err)
		}
		if tick.Volume, err = decimal.NewFromString(rec[5]); err != nil {
			return nil, fmt.Errorf("backtest: row %d volume: %w", line, err)
		}
		series[tick.Symbol] = append(series[tick.Symbol], tick)
	}

	if len(series) == 0 {
		return nil, ErrNoData
	}
	for sym := range series {
		s := series[sym]
		sort.SliceStable(s, func(i, j int) bool { return s[i].Ts.Before(s[j].Ts) })
	}
	return series, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return t.UTC(), nil
}
