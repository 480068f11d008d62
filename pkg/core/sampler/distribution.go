package sampler

import "math"

// Kind is the closed set of sampleable distributions (spec.md §4.4 / §9's
// "polymorphic distribution set").
type Kind string

const (
	Normal     Kind = "normal"
	Lognormal  Kind = "lognormal"
	Beta       Kind = "beta"
	Uniform    Kind = "uniform"
	Triangular Kind = "triangular"
)

// Distribution is a uniform sample(rng, baseMean?) contract every variant
// satisfies (spec.md §9).
type Distribution interface {
	Sample(rng *RNG, baseMean float64) float64
}

// NormalRelative draws N(baseMean, baseMean*pct/100) — a standard
// deviation expressed as a percentage of the base mean (`normal(±p%)`).
type NormalRelative struct {
	Percent float64
}

func (d NormalRelative) Sample(rng *RNG, baseMean float64) float64 {
	sigma := math.Abs(baseMean) * d.Percent / 100
	return baseMean + sigma*normalFromUniform(rng.Float64(), rng.Float64())
}

// NormalAbsolute draws N(mu, sigma) directly, ignoring baseMean.
type NormalAbsolute struct {
	Mu    float64
	Sigma float64
}

func (d NormalAbsolute) Sample(rng *RNG, _ float64) float64 {
	return d.Mu + d.Sigma*normalFromUniform(rng.Float64(), rng.Float64())
}

// Lognormal draws exp(N(mu, sigma)).
type LognormalDist struct {
	Mu    float64
	Sigma float64
}

func (d LognormalDist) Sample(rng *RNG, _ float64) float64 {
	return math.Exp(d.Mu + d.Sigma*normalFromUniform(rng.Float64(), rng.Float64()))
}

// BetaDist draws via two gamma(shape,1) draws (Marsaglia-Tsang) and ratio.
type BetaDist struct {
	Alpha, Beta float64
}

func (d BetaDist) Sample(rng *RNG, _ float64) float64 {
	x := gammaSample(rng, d.Alpha)
	y := gammaSample(rng, d.Beta)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// gammaSample draws Gamma(shape, 1) via Marsaglia-Tsang for shape >= 1,
// and the Ahrens-Dieter boost (shape+1 then correct via a uniform power)
// for shape < 1.
func gammaSample(rng *RNG, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = normalFromUniform(rng.Float64(), rng.Float64())
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// UniformDist draws a linear mapping of a [0,1) draw onto [A, B).
type UniformDist struct {
	A, B float64
}

func (d UniformDist) Sample(rng *RNG, _ float64) float64 {
	return d.A + (d.B-d.A)*rng.Float64()
}

// TriangularDist draws via inverse-CDF sampling over (A, B, C) where C is
// the mode.
type TriangularDist struct {
	A, B, C float64
}

func (d TriangularDist) Sample(rng *RNG, _ float64) float64 {
	u := rng.Float64()
	fc := (d.C - d.A) / (d.B - d.A)
	if u < fc {
		return d.A + math.Sqrt(u*(d.B-d.A)*(d.C-d.A))
	}
	return d.B - math.Sqrt((1-u)*(d.B-d.A)*(d.B-d.C))
}
