// Package sh implements the truncated real spherical-harmonics basis used
// for view-dependent color. Coefficient 0 is the diffuse (DC) term; higher
// coefficients are view-dependent corrections that are activated gradually
// over training.
package sh

// C0 converts between RGB values and the zeroth spherical-harmonics
// coefficient.
const C0 = 0.28209479177387814

const (
	c1 = 0.4886025119029199
)

var c2 = [5]float32{
	1.0925484305920792,
	-1.0925484305920792,
	0.31539156525252005,
	-1.0925484305920792,
	0.5462742152960396,
}

var c3 = [7]float32{
	-0.5900435899266435,
	2.890611442640554,
	-0.4570457994644658,
	0.3731763325901154,
	-0.4570457994644658,
	1.445305721320277,
	-0.5900435899266435,
}

// MaxDegree is the highest supported basis degree.
const MaxDegree = 3

// NumBases returns the number of basis functions for the given degree.
func NumBases(degree int) int {
	if degree < 0 {
		degree = 0
	}
	return (degree + 1) * (degree + 1)
}

// DegreeForBases is the inverse of NumBases. It returns the largest degree
// whose basis count does not exceed numBases.
func DegreeForBases(numBases int) int {
	d := 0
	for NumBases(d+1) <= numBases {
		d++
	}
	return d
}

// RGBToDC converts RGB values in [0,1] to the zeroth coefficient.
func RGBToDC(rgb []float32, dst []float32) {
	for i := range rgb {
		dst[i] = (rgb[i] - 0.5) / C0
	}
}

// DCToRGB converts the zeroth coefficient back to RGB values in [0,1].
func DCToRGB(dc []float32, dst []float32) {
	for i := range dc {
		dst[i] = dc[i]*C0 + 0.5
	}
}

// Eval evaluates the basis for one point up to the given degree.
//
// coeffs is coefficient-major with 3 channels per basis:
// [c0.r c0.g c0.b, c1.r c1.g c1.b, ...]. dir must be a unit vector.
// The result for each channel is written to dst (length 3). Callers add
// 0.5 and clamp to obtain displayable colors.
func Eval(degree int, coeffs []float32, dir [3]float32, dst []float32) {
	ch := func(basis, channel int) float32 { return coeffs[basis*3+channel] }

	x, y, z := dir[0], dir[1], dir[2]
	for c := range 3 {
		result := float32(C0) * ch(0, c)
		if degree >= 1 {
			result += -c1*y*ch(1, c) + c1*z*ch(2, c) - c1*x*ch(3, c)
		}
		if degree >= 2 {
			xx, yy, zz := x*x, y*y, z*z
			xy, yz, xz := x*y, y*z, x*z
			result += c2[0]*xy*ch(4, c) +
				c2[1]*yz*ch(5, c) +
				c2[2]*(2*zz-xx-yy)*ch(6, c) +
				c2[3]*xz*ch(7, c) +
				c2[4]*(xx-yy)*ch(8, c)
			if degree >= 3 {
				result += c3[0]*y*(3*xx-yy)*ch(9, c) +
					c3[1]*xy*z*ch(10, c) +
					c3[2]*y*(4*zz-xx-yy)*ch(11, c) +
					c3[3]*z*(2*zz-3*xx-3*yy)*ch(12, c) +
					c3[4]*x*(4*zz-xx-yy)*ch(13, c) +
					c3[5]*z*(xx-yy)*ch(14, c) +
					c3[6]*x*(xx-3*yy)*ch(15, c)
			}
		}
		dst[c] = result
	}
}

// ActiveDegree returns the basis degree active at the given training step
// for a degree schedule that unlocks one degree every interval steps, capped
// at maxDegree.
func ActiveDegree(step, interval, maxDegree int) int {
	if interval <= 0 {
		return maxDegree
	}
	d := step / interval
	if d > maxDegree {
		d = maxDegree
	}
	return d
}
