package cmath

import "math"

// Some functions that only operate on basic types, that are useful

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
// `f` is assumed to be in the range [0,1]
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}

func Clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// RoundInt rounds half to even, so a center exactly between two pixels
// doesn't always drift the same way.
func RoundInt(f float64) int {
	return int(math.RoundToEven(f))
}

// ISqrt returns the largest n with n*n <= v, for v >= 0.
func ISqrt(v int) int {
	if v <= 0 {
		return 0
	}
	n := int(math.Sqrt(float64(v)))
	for n*n > v {
		n--
	}
	for (n+1)*(n+1) <= v {
		n++
	}
	return n
}
