package stats

import (
	"math"

	"production_data_import/config"
	"production_data_import/models"
	"production_data_import/normalizer"
)

// Aggregator computes dashboard statistics
type Aggregator struct {
	weighting string
}

// NewAggregator creates an aggregator using the given global performance weighting
func NewAggregator(weighting string) *Aggregator {
	if weighting != config.WeightingRow {
		weighting = config.WeightingMachine
	}
	return &Aggregator{weighting: weighting}
}

// ForMachine derives stats from every normalized row of the latest parse, blank rows included
func (a *Aggregator) ForMachine(rows []normalizer.Row) models.MachineStats {
	var (
		out       models.MachineStats
		perfSum   uint64
		operators = make(map[string]struct{})
	)

	for _, row := range rows {
		r := row.Record
		out.TotalProduction += r.ProducedCount
		if r.MachinePerformance > 0 {
			perfSum += uint64(r.MachinePerformance)
			out.PerformanceSamples++
		}
		if r.ProducedCount == 0 {
			out.PendingOrders++
		}
		for _, name := range row.Operators {
			operators[name] = struct{}{}
		}
	}

	if out.PerformanceSamples > 0 {
		out.MachinePerformance = roundMean(float64(perfSum), float64(out.PerformanceSamples))
	}
	out.ActiveOperators = uint(len(operators))
	return out
}

// Global folds per-machine stats into the "all" figures.
// Operators are summed per machine, not deduplicated across machines.
func (a *Aggregator) Global(perMachine []models.MachineStats) models.MachineStats {
	var out models.MachineStats
	if len(perMachine) == 0 {
		return out
	}

	var perfSum, weightedSum float64
	for _, s := range perMachine {
		out.TotalProduction += s.TotalProduction
		out.ActiveOperators += s.ActiveOperators
		out.PendingOrders += s.PendingOrders
		out.PerformanceSamples += s.PerformanceSamples

		perfSum += float64(s.MachinePerformance)
		weightedSum += float64(s.MachinePerformance) * float64(s.PerformanceSamples)
	}

	switch a.weighting {
	case config.WeightingRow:
		if out.PerformanceSamples > 0 {
			out.MachinePerformance = roundMean(weightedSum, float64(out.PerformanceSamples))
		}
	default:
		out.MachinePerformance = roundMean(perfSum, float64(len(perMachine)))
	}
	return out
}

func roundMean(sum, n float64) uint {
	return uint(math.Round(sum / n))
}
