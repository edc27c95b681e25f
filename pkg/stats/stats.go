// Package stats computes per-window movement, scroll and click summaries.
// All calculators are pure functions and return fully populated zero-valued
// structures for empty input so consumers never special-case empty windows.
package stats

import (
	"math"
	"time"

	"github.com/offlinefirst/glimpse/pkg/events"
)

// ScrollDirection classifies the signs of a window's scroll deltas.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollMixed ScrollDirection = "mixed"
)

// MovementSummary aggregates the window's move samples.
type MovementSummary struct {
	TotalDistance      float64 `json:"totalDistance"`
	AverageVelocity    float64 `json:"averageVelocity"`
	MaxVelocity        float64 `json:"maxVelocity"`
	DirectionalChanges int     `json:"directionalChanges"`
	MovementVariance   float64 `json:"movementVariance"`
	MoveCount          int     `json:"moveCount"`
}

// ScrollSummary aggregates the window's scroll aggregates.
type ScrollSummary struct {
	TotalScrollDelta    int             `json:"totalScrollDelta"`
	ScrollCount         int             `json:"scrollCount"`
	AverageScrollAmount float64         `json:"averageScrollAmount"`
	ScrollDirection     ScrollDirection `json:"scrollDirection"`
}

// ClickSummary aggregates the window's click clusters.
type ClickSummary struct {
	TotalClicks  int     `json:"totalClicks"`
	ClickRate    float64 `json:"clickRate"`
	DoubleClicks int     `json:"doubleClicks"`
	LeftClicks   int     `json:"leftClicks"`
	RightClicks  int     `json:"rightClicks"`
}

// Movement summarises move samples. Only events of type move contribute.
func Movement(samples []events.ProcessedMouseEvent) MovementSummary {
	summary := MovementSummary{}

	var velocities []float64
	var prevDirection float64
	hasPrev := false

	for _, sample := range samples {
		if sample.Type != events.MouseMove {
			continue
		}
		summary.MoveCount++
		summary.TotalDistance += sample.Distance
		velocities = append(velocities, sample.Velocity)
		if sample.Velocity > summary.MaxVelocity {
			summary.MaxVelocity = sample.Velocity
		}

		if hasPrev {
			delta := normalizeAngle(sample.Direction - prevDirection)
			// A genuine reversal, not noise near 0 or a full turn.
			if delta > math.Pi/4 && delta < 7*math.Pi/4 {
				summary.DirectionalChanges++
			}
		}
		prevDirection = sample.Direction
		hasPrev = true
	}

	if len(velocities) > 0 {
		var sum float64
		for _, v := range velocities {
			sum += v
		}
		mean := sum / float64(len(velocities))
		summary.AverageVelocity = mean

		var sq float64
		for _, v := range velocities {
			diff := v - mean
			sq += diff * diff
		}
		summary.MovementVariance = sq / float64(len(velocities))
	}

	return summary
}

// normalizeAngle maps an angle difference into [0, 2π).
func normalizeAngle(delta float64) float64 {
	delta = math.Mod(delta, 2*math.Pi)
	if delta < 0 {
		delta += 2 * math.Pi
	}
	return delta
}

// Scroll summarises scroll aggregates. A window with no scroll events
// reports direction "mixed"; that inert default is contractual.
func Scroll(aggregates []events.ProcessedMouseEvent) ScrollSummary {
	summary := ScrollSummary{ScrollDirection: ScrollMixed}

	var absTotal float64
	sawPositive := false
	sawNegative := false

	for _, aggregate := range aggregates {
		if aggregate.Type != events.MouseScroll {
			continue
		}
		summary.ScrollCount++
		summary.TotalScrollDelta += aggregate.WheelDelta
		absTotal += math.Abs(float64(aggregate.WheelDelta))
		if aggregate.WheelDelta > 0 {
			sawPositive = true
		}
		if aggregate.WheelDelta < 0 {
			sawNegative = true
		}
	}

	if summary.ScrollCount > 0 {
		summary.AverageScrollAmount = absTotal / float64(summary.ScrollCount)
		switch {
		case sawPositive && !sawNegative:
			summary.ScrollDirection = ScrollUp
		case sawNegative && !sawPositive:
			summary.ScrollDirection = ScrollDown
		}
	}

	return summary
}

// Clicks summarises click clusters over the window duration. TotalClicks
// counts clusters, not raw clicks; DoubleClicks counts clusters that merged
// two or more.
func Clicks(clusters []events.ProcessedMouseEvent, duration time.Duration) ClickSummary {
	summary := ClickSummary{}

	for _, clusterEvent := range clusters {
		if clusterEvent.Type != events.MouseClick {
			continue
		}
		summary.TotalClicks++
		if clusterEvent.NumberOfClicks >= 2 {
			summary.DoubleClicks++
		}
		switch clusterEvent.Button {
		case events.ButtonRight:
			summary.RightClicks++
		case events.ButtonMiddle:
			// Counted in TotalClicks only.
		default:
			summary.LeftClicks++
		}
	}

	if seconds := duration.Seconds(); seconds > 0 {
		summary.ClickRate = float64(summary.TotalClicks) / seconds
	}

	return summary
}
