package render

import (
	"github.com/chewxy/math32"
)

// Mat4 is a row-major 4x4 matrix.
type Mat4 [16]float32

// Identity4 returns the identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m*other.
func (m Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for r := range 4 {
		for c := range 4 {
			var sum float32
			for k := range 4 {
				sum += m[r*4+k] * other[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Camera is a single pinhole camera: a camera-to-world pose plus intrinsics.
// The contract throughout is one camera at a time; there is no batch axis.
type Camera struct {
	// CameraToWorld is the row-major camera-to-world rigid transform.
	CameraToWorld Mat4

	// FX, FY, CX, CY are the pinhole intrinsics in pixels.
	FX, FY, CX, CY float32

	// Width, Height is the render target size in pixels.
	Width, Height int
}

// FOV returns the horizontal and vertical fields of view in radians.
func (c Camera) FOV() (fovx, fovy float32) {
	fovx = 2 * math32.Atan(float32(c.Width)/(2*c.FX))
	fovy = 2 * math32.Atan(float32(c.Height)/(2*c.FY))
	return fovx, fovy
}

// ViewMatrix converts the camera-to-world pose into the rasterizer's
// world-to-camera convention: the y and z camera axes are flipped (a pi
// rotation about x), then the rigid transform is inverted analytically.
func (c Camera) ViewMatrix() Mat4 {
	// R' = R * diag(1,-1,-1); columns 1 and 2 negate.
	var r [9]float32
	for row := range 3 {
		r[row*3+0] = c.CameraToWorld[row*4+0]
		r[row*3+1] = -c.CameraToWorld[row*4+1]
		r[row*3+2] = -c.CameraToWorld[row*4+2]
	}
	tx := c.CameraToWorld[3]
	ty := c.CameraToWorld[7]
	tz := c.CameraToWorld[11]

	// view = [R'^T, -R'^T t; 0 0 0 1]
	var out Mat4
	for row := range 3 {
		out[row*4+0] = r[0*3+row]
		out[row*4+1] = r[1*3+row]
		out[row*4+2] = r[2*3+row]
		out[row*4+3] = -(r[0*3+row]*tx + r[1*3+row]*ty + r[2*3+row]*tz)
	}
	out[15] = 1
	return out
}

// ProjectionMatrix builds an OpenGL-style perspective projection from the
// camera's fields of view.
func (c Camera) ProjectionMatrix(znear, zfar float32) Mat4 {
	fovx, fovy := c.FOV()
	top := znear * math32.Tan(0.5*fovy)
	bottom := -top
	right := znear * math32.Tan(0.5*fovx)
	left := -right
	n, f := znear, zfar

	return Mat4{
		2 * n / (right - left), 0, (right + left) / (right - left), 0,
		0, 2 * n / (top - bottom), (top + bottom) / (top - bottom), 0,
		0, 0, (f + n) / (f - n), -f * n / (f - n),
		0, 0, 1, 0,
	}
}

// Downscaled returns the camera rescaled to a 1/d render target.
func (c Camera) Downscaled(d int) Camera {
	if d <= 1 {
		return c
	}
	df := float32(d)
	return Camera{
		CameraToWorld: c.CameraToWorld,
		FX:            c.FX / df,
		FY:            c.FY / df,
		CX:            c.CX / df,
		CY:            c.CY / df,
		Width:         c.Width / d,
		Height:        c.Height / d,
	}
}

// CropBox is an axis-aligned world-space crop region. Only primitives
// inside the box are rendered while a crop is set.
type CropBox struct {
	Min [3]float32
	Max [3]float32
}

// Contains reports whether the point p (length 3) lies inside the box.
func (b CropBox) Contains(p []float32) bool {
	for a := range 3 {
		if p[a] < b.Min[a] || p[a] > b.Max[a] {
			return false
		}
	}
	return true
}
