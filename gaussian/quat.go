package gaussian

import (
	"math/rand"

	"github.com/chewxy/math32"
)

// RandomQuat writes a uniformly distributed unit quaternion (wxyz) into dst
// using Shepperd's subgroup sampling from three uniform variates.
func RandomQuat(rng *rand.Rand, dst []float32) []float32 {
	u := rng.Float32()
	v := rng.Float32()
	w := rng.Float32()

	twoPi := 2 * math32.Pi
	dst[0] = math32.Sqrt(1-u) * math32.Sin(twoPi*v)
	dst[1] = math32.Sqrt(1-u) * math32.Cos(twoPi*v)
	dst[2] = math32.Sqrt(u) * math32.Sin(twoPi*w)
	dst[3] = math32.Sqrt(u) * math32.Cos(twoPi*w)
	return dst[:4]
}

// QuatToRotMat converts a unit quaternion (wxyz) to a row-major 3x3
// rotation matrix written into dst (length 9).
func QuatToRotMat(q []float32, dst []float32) []float32 {
	w, x, y, z := q[0], q[1], q[2], q[3]

	dst[0] = 1 - 2*(y*y+z*z)
	dst[1] = 2 * (x*y - w*z)
	dst[2] = 2 * (x*z + w*y)
	dst[3] = 2 * (x*y + w*z)
	dst[4] = 1 - 2*(x*x+z*z)
	dst[5] = 2 * (y*z - w*x)
	dst[6] = 2 * (x*z - w*y)
	dst[7] = 2 * (y*z + w*x)
	dst[8] = 1 - 2*(x*x+y*y)
	return dst[:9]
}

// RotateVec applies the row-major 3x3 rotation matrix m to v and writes the
// result into dst. dst must not alias v.
func RotateVec(m []float32, v []float32, dst []float32) []float32 {
	dst[0] = m[0]*v[0] + m[1]*v[1] + m[2]*v[2]
	dst[1] = m[3]*v[0] + m[4]*v[1] + m[5]*v[2]
	dst[2] = m[6]*v[0] + m[7]*v[1] + m[8]*v[2]
	return dst[:3]
}
