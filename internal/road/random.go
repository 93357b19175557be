package road

import "math/rand/v2"

// Source yields uniform values in [0, 1). Implementations need not be safe
// for concurrent use unless stated.
type Source interface {
	Float64() float64
}

// NewSource returns a deterministic PCG backed source for the seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Between draws uniformly from [lo, lo+spread).
func Between(src Source, lo, spread float64) float64 {
	return lo + src.Float64()*spread
}

// Jitter draws uniformly from [-spread/2, spread/2).
func Jitter(src Source, spread float64) float64 {
	return (src.Float64() - 0.5) * spread
}

// Chance reports whether a draw lands below p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// PickIndex draws an index in [0, n).
func PickIndex(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	idx := int(src.Float64() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// ObstacleSpec is the randomised shape of one lane obstacle.
type ObstacleSpec struct {
	Kind   Kind
	Width  float64
	Depth  float64
	Height float64
}

// PickObstacle selects an obstacle variant and its dimensions:
// cones 35%, low barriers 35%, wide barriers 30%.
func PickObstacle(src Source) ObstacleSpec {
	roll := src.Float64()
	switch {
	case roll < 0.35:
		radius := Between(src, 0.32, 0.06)
		return ObstacleSpec{
			Kind:   KindCone,
			Width:  radius * 2,
			Depth:  radius * 2,
			Height: Between(src, 0.7, 0.15),
		}
	case roll < 0.7:
		return ObstacleSpec{
			Kind:   KindLowBarrier,
			Width:  Between(src, 1.4, 0.5),
			Depth:  Between(src, 1.2, 0.4),
			Height: Between(src, 0.9, 0.4),
		}
	default:
		return ObstacleSpec{
			Kind:   KindWideBarrier,
			Width:  Between(src, 2.4, 0.8),
			Depth:  Between(src, 0.8, 0.3),
			Height: 0.9,
		}
	}
}
