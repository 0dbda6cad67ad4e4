// Package statistics summarises a player's settled hands.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/casino/internal/table"
)

// HandResult is one player's outcome in one settled hand.
type HandResult struct {
	Table  string
	Net    int // chips won (positive) or lost
	Result table.Result
}

// TableStats tracks results at one table.
type TableStats struct {
	Hands int
	Net   int
}

// Statistics accumulates hand results. The zero value is ready to use.
type Statistics struct {
	Hands  int
	Net    int
	SumSq  float64   // sum of squared nets, for variance
	Values []float64 // every net, for median and percentiles

	Wins, Losses, Others int
	WinNet               int // chips from hands classified Win
	LossNet              int
	OtherNet             int

	BiggestWin  int
	BiggestLoss int // most negative net seen

	Tables map[string]*TableStats
}

// Add incorporates one hand.
func (s *Statistics) Add(r HandResult) {
	s.Hands++
	s.Net += r.Net
	s.SumSq += float64(r.Net) * float64(r.Net)
	s.Values = append(s.Values, float64(r.Net))

	switch r.Result {
	case table.ResultWin:
		s.Wins++
		s.WinNet += r.Net
	case table.ResultLoss:
		s.Losses++
		s.LossNet += r.Net
	default:
		s.Others++
		s.OtherNet += r.Net
	}

	if r.Net > s.BiggestWin {
		s.BiggestWin = r.Net
	}
	if r.Net < s.BiggestLoss {
		s.BiggestLoss = r.Net
	}

	if s.Tables == nil {
		s.Tables = make(map[string]*TableStats)
	}
	ts := s.Tables[r.Table]
	if ts == nil {
		ts = &TableStats{}
		s.Tables[r.Table] = ts
	}
	ts.Hands++
	ts.Net += r.Net
}

// Mean returns the average net chips per hand.
func (s *Statistics) Mean() float64 {
	if s.Hands == 0 {
		return 0
	}
	return float64(s.Net) / float64(s.Hands)
}

// Variance returns the sample variance of the per-hand nets.
func (s *Statistics) Variance() float64 {
	if s.Hands < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumSq - float64(s.Hands)*mean*mean) / float64(s.Hands-1)
}

func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean.
func (s *Statistics) StdError() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Hands))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean.
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// WinRate returns the fraction of hands classified as wins.
func (s *Statistics) WinRate() float64 {
	if s.Hands == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Hands)
}

// BBPer100 expresses the mean in big blinds per hundred hands.
func (s *Statistics) BBPer100(bigBlind int) float64 {
	if bigBlind <= 0 {
		return 0
	}
	return s.Mean() / float64(bigBlind) * 100
}

func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the interpolated value at p, between 0 and 1.
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// TableNames returns the tables played, busiest first.
func (s *Statistics) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.Tables[names[i]], s.Tables[names[j]]
		if a.Hands != b.Hands {
			return a.Hands > b.Hands
		}
		return names[i] < names[j]
	})
	return names
}

// IsLedgerBalanced reports whether the per-result buckets add up to the total.
func (s *Statistics) IsLedgerBalanced() bool {
	return s.WinNet+s.LossNet+s.OtherNet == s.Net
}

// Validate checks the internal accounting.
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: net=%d, win=%d, loss=%d, other=%d",
			s.Net, s.WinNet, s.LossNet, s.OtherNet)
	}
	if s.Wins+s.Losses+s.Others != s.Hands {
		return fmt.Errorf("result counts (%d) do not match hands (%d)", s.Wins+s.Losses+s.Others, s.Hands)
	}
	if len(s.Values) != s.Hands {
		return fmt.Errorf("values array length (%d) does not match hands count (%d)", len(s.Values), s.Hands)
	}

	tableHands, tableNet := 0, 0
	for _, ts := range s.Tables {
		tableHands += ts.Hands
		tableNet += ts.Net
	}
	if tableHands != s.Hands || tableNet != s.Net {
		return fmt.Errorf("table totals (%d hands, %d net) do not match (%d hands, %d net)",
			tableHands, tableNet, s.Hands, s.Net)
	}
	return nil
}
