package series

import (
	"math"
	"sort"

	"spxlab/internal/domain"
)

// CleanReport counts the rows Clean discarded, by reason.
type CleanReport struct {
	Input      int `json:"input"`
	Missing    int `json:"missing"`
	Negative   int `json:"negative"`
	Duplicates int `json:"duplicates"`
	Output     int `json:"output"`
}

// Dropped is the total number of discarded rows.
func (r CleanReport) Dropped() int {
	return r.Missing + r.Negative + r.Duplicates
}

// Clean drops bars with missing (NaN/Inf) or negative prices or volume,
// normalises timestamps to trading dates, keeps the last bar seen for each
// date and returns the survivors in ascending date order.
func Clean(bars []domain.Bar) ([]domain.Bar, CleanReport) {
	rep := CleanReport{Input: len(bars)}

	byDate := make(map[int64]int, len(bars))
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !finite(b.Open, b.High, b.Low, b.Close) {
			rep.Missing++
			continue
		}
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 || b.Volume < 0 {
			rep.Negative++
			continue
		}
		b.Timestamp = domain.TradingDate(b.Timestamp)
		key := b.Timestamp.Unix()
		if idx, dup := byDate[key]; dup {
			out[idx] = b
			rep.Duplicates++
			continue
		}
		byDate[key] = len(out)
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	rep.Output = len(out)
	return out, rep
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
