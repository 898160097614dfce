package simulator

const (
	lcgModulus    = 2147483647 // 2^31 - 1
	lcgMultiplier = 16807
)

// SeededRandom is the Park-Miller minimal standard generator. The whole process
// shares one stream, so values depend on the order of consumption. It is not
// safe for concurrent use; Simulator serializes access to it.
type SeededRandom struct {
	seed int64
}

func NewSeededRandom(seed int64) *SeededRandom {
	seed %= lcgModulus
	if seed < 0 {
		seed += lcgModulus
	}
	if seed == 0 {
		// zero is a fixed point of the recurrence
		seed = 1
	}
	return &SeededRandom{seed: seed}
}

// Next returns the next value in [0,1).
func (r *SeededRandom) Next() float64 {
	r.seed = (r.seed * lcgMultiplier) % lcgModulus
	return float64(r.seed-1) / (lcgModulus - 1)
}

// Range maps Next linearly into [min,max).
func (r *SeededRandom) Range(min, max float64) float64 {
	return min + r.Next()*(max-min)
}
