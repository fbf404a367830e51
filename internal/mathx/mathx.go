package mathx

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

func Clamp[T constraints.Ordered](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampMap linearly maps x from [inMin, inMax] onto [outMin, outMax],
// saturating at both ends. A zero-width input range maps to outMin.
func ClampMap[T Number](x, inMin, inMax, outMin, outMax T) T {
	if inMax == inMin {
		log.Error().Interface("in_min", inMin).Msg("clamp map called with an empty input range")
		return outMin
	}
	if x <= inMin {
		return outMin
	}
	if x >= inMax {
		return outMax
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
