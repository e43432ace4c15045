// Package scoring reduces a diver's dive statistics to springboard, platform and total ratings.
//
// Per event (1-Meter, 3-Meter, Platform) the engine keeps the best dive of each family and a
// runner-up that does not share the best dive's prefix. The front, back, reverse, inward and
// twisting bests fill five slots; the sixth slot is the strongest runner-up of any family.
// Armstand bests are never a top-level slot.
package scoring

import (
	"github.com/aluiziolira/divemeets-skill-rating/divetable"
	"github.com/aluiziolira/divemeets-skill-rating/models"
)

// Event is a board category.
type Event int

const (
	OneMeter Event = iota
	ThreeMeter
	Platform
)

func (e Event) String() string {
	switch e {
	case OneMeter:
		return "1M"
	case ThreeMeter:
		return "3M"
	default:
		return "Platform"
	}
}

// EventFor buckets a board height into an event.
func EventFor(height float64) Event {
	switch {
	case height > 3:
		return Platform
	case height > 1:
		return ThreeMeter
	default:
		return OneMeter
	}
}

// MetricFunc aggregates a selected top list into one rating.
type MetricFunc func(dives []models.DiveStatistic) float64

// Engine computes skill ratings against a difficulty table.
type Engine struct {
	table *divetable.Table
}

// NewEngine builds an engine. A nil table makes every difficulty lookup miss.
func NewEngine(table *divetable.Table) *Engine {
	return &Engine{table: table}
}

// DD returns the difficulty of a dive, or 0 when the table has no entry for it.
func (e *Engine) DD(dive models.DiveStatistic) float64 {
	dd, ok := e.table.DD(dive.Number, dive.Height)
	if !ok {
		return 0
	}
	return dd
}

// ScoringValue is average score times difficulty.
func (e *Engine) ScoringValue(dive models.DiveStatistic) float64 {
	return dive.AvgScore * e.DD(dive)
}

// Rate computes the ratings with the default metric.
func (e *Engine) Rate(stats []models.DiveStatistic) models.SkillRatingResult {
	return e.RateWithMetric(stats, e.Metric)
}

// RateWithMetric computes the ratings, aggregating each event's top list with metric.
func (e *Engine) RateWithMetric(stats []models.DiveStatistic, metric MetricFunc) models.SkillRatingResult {
	byEvent := SplitByEvent(stats)

	var result models.SkillRatingResult
	for _, event := range []Event{OneMeter, ThreeMeter, Platform} {
		rating := metric(e.TopDives(byEvent[event]))
		if event == Platform {
			result.Platform += rating
		} else {
			result.Springboard += rating
		}
	}
	result.Total = result.Springboard + result.Platform
	return result
}

// SplitByEvent groups dives by event, preserving input order within each event.
func SplitByEvent(stats []models.DiveStatistic) map[Event][]models.DiveStatistic {
	out := map[Event][]models.DiveStatistic{
		OneMeter:   nil,
		ThreeMeter: nil,
		Platform:   nil,
	}
	for _, dive := range stats {
		event := EventFor(dive.Height)
		out[event] = append(out[event], dive)
	}
	return out
}

// Metric sums avgScore * DD * (1.01 - 1/numberOfTimes) over the dives.
// Dives with numberOfTimes < 1 contribute nothing.
func (e *Engine) Metric(dives []models.DiveStatistic) float64 {
	total := 0.0
	for _, dive := range dives {
		total += e.ScoringValue(dive) * RepetitionFactor(dive.NumberOfTimes)
	}
	return total
}

// RepetitionFactor is 1.01 - 1/n for n >= 1 and 0 otherwise.
func RepetitionFactor(n int) float64 {
	if n < 1 {
		return 0
	}
	return 1.01 - 1.0/float64(n)
}

type familySlot struct {
	best   *models.DiveStatistic
	second *models.DiveStatistic
}

// TopDives selects up to six representative dives from one event's statistics.
func (e *Engine) TopDives(dives []models.DiveStatistic) []models.DiveStatistic {
	var families [6]familySlot

	for i := range dives {
		dive := &dives[i]
		family := dive.Family()
		if family < '1' || family > '6' {
			continue
		}
		e.consider(&families[family-'1'], dive)
	}

	var sixth *models.DiveStatistic
	for i := range families {
		if families[i].second != nil {
			sixth = e.bestOf(families[i].second, sixth)
		}
	}

	result := make([]models.DiveStatistic, 0, 6)
	// Armstand (index 5) only competes through its runner-up.
	for _, slot := range families[:5] {
		if slot.best != nil {
			result = append(result, *slot.best)
		}
	}
	if sixth != nil {
		result = append(result, *sixth)
	}
	return result
}

func (e *Engine) consider(slot *familySlot, dive *models.DiveStatistic) {
	if slot.best == nil {
		slot.best = dive
		return
	}

	if e.better(dive, slot.best) {
		// A demoted best sharing the newcomer's prefix is a near-duplicate and is dropped.
		if !samePrefix(dive, slot.best) {
			slot.second = slot.best
		}
		slot.best = dive
		return
	}

	if !samePrefix(dive, slot.best) && !samePrefix(dive, slot.second) {
		slot.second = e.bestOf(dive, slot.second)
	}
}

// better reports whether a outranks b: higher scoring value, then more repetitions.
func (e *Engine) better(a, b *models.DiveStatistic) bool {
	av, bv := e.ScoringValue(*a), e.ScoringValue(*b)
	return av > bv || (av == bv && a.NumberOfTimes > b.NumberOfTimes)
}

func (e *Engine) bestOf(dive, stored *models.DiveStatistic) *models.DiveStatistic {
	if stored == nil || e.better(dive, stored) {
		return dive
	}
	return stored
}

func samePrefix(a, b *models.DiveStatistic) bool {
	return b != nil && a.Prefix() == b.Prefix()
}
