package meter

import "math"

const (
	minRate      = 0.1
	maxEstimate  = 9999.0
	secPerMinute = 60.0
)

// MovingAverage is a fixed-window average over the most recent samples.
type MovingAverage struct {
	samples []float64
	next    int
	count   int
	sum     float64
}

func NewMovingAverage(size int) *MovingAverage {
	if size < 1 {
		size = 1
	}
	return &MovingAverage{samples: make([]float64, size)}
}

func (a *MovingAverage) Add(v float64) float64 {
	if a.count == len(a.samples) {
		a.sum -= a.samples[a.next]
	} else {
		a.count++
	}
	a.samples[a.next] = v
	a.sum += v
	a.next = (a.next + 1) % len(a.samples)
	return a.Value()
}

func (a *MovingAverage) Value() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// estimate turns the average energy change per window into minutes until
// full and minutes until empty. Only one of the two is defined at a time.
func estimate(avgPerWindow, windowSeconds float64, current, full int64) (toFull, toEmpty float64) {
	toFull, toEmpty = math.NaN(), math.NaN()
	if math.Abs(avgPerWindow) < minRate || windowSeconds <= 0 {
		return
	}
	rate := avgPerWindow / windowSeconds
	if rate > 0 {
		toFull = math.Min(float64(full-current)/rate/secPerMinute, maxEstimate)
		if toFull < 0 {
			toFull = 0
		}
	} else {
		toEmpty = math.Min(float64(current)/-rate/secPerMinute, maxEstimate)
	}
	return
}
