package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
)

const defaultStatsWindow = 500

// Stats keeps counters and a sliding window of iteration periods
type Stats struct {
	periods []float64 // seconds
	next    int
	full    bool
	last    time.Time

	published uint64
	pending   uint64
	occluded  uint64
}

// Summary is a snapshot of the loop statistics
type Summary struct {
	Published uint64
	Pending   uint64
	Occluded  uint64

	Rate       float64 // Effective update rate in Hz
	MeanPeriod time.Duration
	P95Period  time.Duration
}

// NewStats creates statistics over the last window iteration periods
func NewStats(window int) *Stats {
	if window <= 0 {
		window = defaultStatsWindow
	}
	return &Stats{periods: make([]float64, window)}
}

// observe counts one published update at now
func (s *Stats) observe(now time.Time) {
	s.published++

	if !s.last.IsZero() {
		s.periods[s.next] = now.Sub(s.last).Seconds()
		s.next = (s.next + 1) % len(s.periods)
		if s.next == 0 {
			s.full = true
		}
	}
	s.last = now
}

func (s *Stats) window() []float64 {
	if s.full {
		return s.periods
	}
	return s.periods[:s.next]
}

// Summary computes the current snapshot
func (s *Stats) Summary() Summary {
	sum := Summary{
		Published: s.published,
		Pending:   s.pending,
		Occluded:  s.occluded,
	}

	data := s.window()
	if len(data) == 0 {
		return sum
	}

	if mean, err := stats.Mean(data); err == nil && mean > 0 {
		sum.MeanPeriod = seconds(mean)
		sum.Rate = 1 / mean
	}
	if p95, err := stats.Percentile(data, 95); err == nil {
		sum.P95Period = seconds(p95)
	}

	return sum
}

func (s Summary) attrs() []any {
	return []any{
		slog.String("published", humanize.Comma(int64(s.Published))),
		slog.String("pendingRetries", humanize.Comma(int64(s.Pending))),
		slog.String("occluded", humanize.Comma(int64(s.Occluded))),
		slog.String("rate", fmt.Sprintf("%.1f Hz", s.Rate)),
		slog.Duration("meanPeriod", s.MeanPeriod),
		slog.Duration("p95Period", s.P95Period),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
