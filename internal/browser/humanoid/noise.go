// internal/browser/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
)

// pinkNoise produces 1/f noise with the stochastic Voss-McCartney method.
// Consecutive samples are correlated, which reads as slow hand drift rather
// than jitter.
type pinkNoise struct {
	rng     *rand.Rand
	sources []float64
	weights []float64
	sum     float64
	scale   float64
}

func newPinkNoise(rng *rand.Rand, n int) *pinkNoise {
	if n <= 0 {
		n = 12
	}
	p := &pinkNoise{
		rng:     rng,
		sources: make([]float64, n),
		weights: make([]float64, n),
		scale:   1.0 / math.Sqrt(float64(n)),
	}

	// Lower sources change geometrically less often.
	total := 0.0
	for i := range p.weights {
		p.weights[i] = math.Pow(2, float64(-i))
		total += p.weights[i]
	}
	for i := range p.weights {
		p.weights[i] /= total
		p.sources[i] = p.white()
		p.sum += p.sources[i]
	}
	return p
}

func (p *pinkNoise) white() float64 {
	return p.rng.Float64()*2.0 - 1.0
}

// next returns a sample in roughly [-1, 1].
func (p *pinkNoise) next() float64 {
	r := p.rng.Float64()
	idx := len(p.sources) - 1
	acc := 0.0
	for i, w := range p.weights {
		acc += w
		if r < acc {
			idx = i
			break
		}
	}

	fresh := p.white()
	p.sum += fresh - p.sources[idx]
	p.sources[idx] = fresh
	return p.sum * p.scale
}
