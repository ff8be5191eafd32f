package splatgo

// Photometric loss pieces. The rendered and target images are flat
// H*W*C float32 buffers in [0,1].

const (
	// DefaultSSIMLambda weights the structural term of the photometric loss.
	DefaultSSIMLambda = 0.2

	ssimWindow = 11
	ssimC1     = 0.01 * 0.01
	ssimC2     = 0.03 * 0.03
)

// L1 returns the mean absolute difference between two equally sized buffers.
func L1(pred, target []float32) float32 {
	if len(pred) == 0 {
		return 0
	}
	var sum float32
	for i := range pred {
		d := pred[i] - target[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float32(len(pred))
}

// SSIM returns the mean structural similarity between two images using a
// box window per channel. 1 means identical.
func SSIM(pred, target []float32, width, height, channels int) float32 {
	half := ssimWindow / 2
	var total float64
	var count int

	for c := range channels {
		for y := range height {
			for x := range width {
				var muP, muT float32
				var n float32
				y0, y1 := maxInt(y-half, 0), minInt(y+half, height-1)
				x0, x1 := maxInt(x-half, 0), minInt(x+half, width-1)
				for wy := y0; wy <= y1; wy++ {
					for wx := x0; wx <= x1; wx++ {
						o := (wy*width+wx)*channels + c
						muP += pred[o]
						muT += target[o]
						n++
					}
				}
				muP /= n
				muT /= n

				var varP, varT, cov float32
				for wy := y0; wy <= y1; wy++ {
					for wx := x0; wx <= x1; wx++ {
						o := (wy*width+wx)*channels + c
						dp := pred[o] - muP
						dt := target[o] - muT
						varP += dp * dp
						varT += dt * dt
						cov += dp * dt
					}
				}
				varP /= n
				varT /= n
				cov /= n

				num := (2*muP*muT + ssimC1) * (2*cov + ssimC2)
				den := (muP*muP + muT*muT + ssimC1) * (varP + varT + ssimC2)
				total += float64(num / den)
				count++
			}
		}
	}
	if count == 0 {
		return 1
	}
	return float32(total / float64(count))
}

// PhotometricLoss combines L1 and SSIM: (1-lambda)*L1 + lambda*(1-SSIM).
func PhotometricLoss(pred, target []float32, width, height, channels int, lambda float32) float32 {
	return (1-lambda)*L1(pred, target) + lambda*(1-SSIM(pred, target, width, height, channels))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
