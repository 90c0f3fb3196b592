package stats

import (
	"math"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

// BuildFunnel turns ordered per-link counts into funnel steps. Drop-off is
// the relative decrease in unique visitors from the previous step; conversion
// is measured against the first step.
func BuildFunnel(counts []domain.FunnelCount) *domain.Funnel {
	funnel := &domain.Funnel{Steps: make([]domain.FunnelStep, 0, len(counts))}
	if len(counts) == 0 {
		return funnel
	}

	first := counts[0].UniqueVisitors
	for i, c := range counts {
		step := domain.FunnelStep{
			FunnelCount: c,
			Step:        i + 1,
			Conversion:  percent(c.UniqueVisitors, first),
		}
		if i > 0 {
			prev := counts[i-1].UniqueVisitors
			step.DropOff = percent(prev-c.UniqueVisitors, prev)
		}
		funnel.Steps = append(funnel.Steps, step)
	}
	return funnel
}

// Compare ranks links as A/B variants. The leader has the most unique
// visitors, the earliest listed on ties; every variant's drop-off is measured
// against it and its conversion is its share of all unique visitors.
func Compare(counts []domain.FunnelCount) *domain.Comparison {
	cmp := &domain.Comparison{Variants: make([]domain.FunnelStep, 0, len(counts))}
	if len(counts) == 0 {
		return cmp
	}

	var total int64
	leader := counts[0]
	for _, c := range counts {
		total += c.UniqueVisitors
		if c.UniqueVisitors > leader.UniqueVisitors {
			leader = c
		}
	}
	cmp.LeaderID = leader.LinkID

	for i, c := range counts {
		cmp.Variants = append(cmp.Variants, domain.FunnelStep{
			FunnelCount: c,
			Step:        i + 1,
			Conversion:  percent(c.UniqueVisitors, total),
			DropOff:     percent(leader.UniqueVisitors-c.UniqueVisitors, leader.UniqueVisitors),
		})
	}
	return cmp
}
