package world

import "math"

// valueNoise is deterministic lattice value noise. Lattice values come from
// an integer hash so the same seed always yields the same terrain.
type valueNoise struct {
	seed        int64
	octaves     int
	persistence float64
	lacunarity  float64
}

func newValueNoise(seed int64, octaves int) valueNoise {
	return valueNoise{seed: seed, octaves: octaves, persistence: 0.5, lacunarity: 2}
}

// smootherstep 6t^5 - 15t^4 + 10t^3
func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// splitmix64 finaliser
func mix(v uint64) uint64 {
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

func lattice(x, y, z, seed int64) float64 {
	h := mix(uint64(x)*0x9E3779B97F4A7C15 + uint64(y)*0x517CC1B727220A95 + uint64(z)*0x6C62272E07BB0142 + uint64(seed))
	return float64(h&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

func sample3(x, y, z float64, seed int64) float64 {
	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := fade(x-x0), fade(y-y0), fade(z-z0)
	ix, iy, iz := int64(x0), int64(y0), int64(z0)

	c := func(dx, dy, dz int64) float64 { return lattice(ix+dx, iy+dy, iz+dz, seed) }
	x00 := lerp(c(0, 0, 0), c(1, 0, 0), fx)
	x10 := lerp(c(0, 1, 0), c(1, 1, 0), fx)
	x01 := lerp(c(0, 0, 1), c(1, 0, 1), fx)
	x11 := lerp(c(0, 1, 1), c(1, 1, 1), fx)
	return lerp(lerp(x00, x10, fy), lerp(x01, x11, fy), fz)
}

// At3 returns fractal noise in [0,1].
func (n valueNoise) At3(x, y, z float64) float64 {
	amp, freq, sum, norm := 1.0, 1.0, 0.0, 0.0
	for i := range n.octaves {
		sum += sample3(x*freq, y*freq, z*freq, n.seed+int64(i*131)) * amp
		norm += amp
		amp *= n.persistence
		freq *= n.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// At2 returns fractal noise in [0,1] on the y=0 plane.
func (n valueNoise) At2(x, z float64) float64 {
	return n.At3(x, 0, z)
}
