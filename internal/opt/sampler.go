package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// Sample is one low-energy assignment returned by a sampler.
type Sample struct {
	Bits   []uint8 `json:"bits"`
	Energy float64 `json:"energy"`
}

// Sampler is the annealing black box: given an energy model and a read
// budget, it returns zero or more low-energy assignments within a
// best-effort time bound. Implementations may run locally or call out to a
// remote sampler; the router never assumes which.
type Sampler interface {
	Sample(ctx context.Context, q *QUBO, reads int) ([]Sample, error)
}

// LocalSampler is a simulated-annealing sampler: per read, random init,
// single-bit-flip Metropolis walk with geometric cooling.
type LocalSampler struct {
	Seed     int64
	Sweeps   int
	InitTemp float64
	Cooling  float64
	// Keep is how many best samples to return (default 10).
	Keep int
}

func (s LocalSampler) Sample(ctx context.Context, q *QUBO, reads int) ([]Sample, error) {
	if reads <= 0 {
		reads = 1
	}
	sweeps := s.Sweeps
	if sweeps <= 0 {
		sweeps = 64
	}
	temp0 := s.InitTemp
	if temp0 <= 0 {
		// Scale the start temperature to the model's coefficient range so
		// early sweeps can cross penalty barriers.
		temp0 = maxAbsCoeff(q)
	}
	cool := s.Cooling
	if cool <= 0 || cool >= 1 {
		cool = 0.95
	}
	keep := s.Keep
	if keep <= 0 {
		keep = 10
	}
	rng := rand.New(rand.NewSource(s.Seed))
	if s.Seed == 0 {
		rng = rand.New(rand.NewSource(1))
	}

	var out []Sample
	for r := 0; r < reads; r++ {
		if err := ctx.Err(); err != nil {
			// Keep whatever was gathered before the deadline.
			break
		}
		bits := make([]uint8, q.N)
		for i := range bits {
			if rng.Intn(2) == 1 {
				bits[i] = 1
			}
		}
		energy := q.Energy(bits)
		temp := temp0
		for sw := 0; sw < sweeps; sw++ {
			for i := 0; i < q.N; i++ {
				v := rng.Intn(q.N)
				delta := q.flipDelta(bits, v)
				if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
					bits[v] ^= 1
					energy += delta
				}
			}
			temp *= cool
		}
		out = append(out, Sample{Bits: append([]uint8(nil), bits...), Energy: energy})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Energy < out[j].Energy })
	if len(out) > keep {
		out = out[:keep]
	}
	return out, nil
}

// flipDelta is the energy change from flipping variable v in the current
// assignment.
func (q *QUBO) flipDelta(bits []uint8, v int) float64 {
	sign := 1.0
	if bits[v] != 0 {
		sign = -1.0
	}
	delta := sign * q.Linear[v]
	for k, w := range q.Quadratic {
		switch {
		case k[0] == v:
			if bits[k[1]] != 0 {
				delta += sign * w
			}
		case k[1] == v:
			if bits[k[0]] != 0 {
				delta += sign * w
			}
		}
	}
	return delta
}

func maxAbsCoeff(q *QUBO) float64 {
	m := 1.0
	for _, w := range q.Linear {
		m = math.Max(m, math.Abs(w))
	}
	for _, w := range q.Quadratic {
		m = math.Max(m, math.Abs(w))
	}
	return m
}
