package segmentation

import (
	"math"

	"rlforseg/internal/models"
)

// gaussianTruncate is the number of standard deviations the kernel extends on
// each side of its centre
const gaussianTruncate = 4.0

// GaussianFilter smooths f with a separable Gaussian of the given sigma.
// Borders are handled by half-sample reflection (d c b a | a b c d | d c b a),
// so a constant map stays constant. A non-positive sigma returns a copy.
func GaussianFilter(f *models.FloatMap, sigma float64) *models.FloatMap {
	out := models.NewFloatMap(f.Width, f.Height)
	if sigma <= 0 {
		copy(out.Data, f.Data)
		return out
	}

	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := gaussianKernel(2*radius+1, sigma)

	// Rows first into a scratch buffer, then columns into the output
	tmp := make([]float64, len(f.Data))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			sum := 0.0
			for k := -radius; k <= radius; k++ {
				sx := reflectIndex(x+k, f.Width)
				sum += kernel[k+radius] * f.Data[y*f.Width+sx]
			}
			tmp[y*f.Width+x] = sum
		}
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			sum := 0.0
			for k := -radius; k <= radius; k++ {
				sy := reflectIndex(y+k, f.Height)
				sum += kernel[k+radius] * tmp[sy*f.Width+x]
			}
			out.Data[y*f.Width+x] = sum
		}
	}

	return out
}

// SmoothZeroPadded convolves f with a size x size Gaussian kernel, treating
// everything outside the map as zero. The output has the shape of f.
func SmoothZeroPadded(f *models.FloatMap, size int, sigma float64) *models.FloatMap {
	out := models.NewFloatMap(f.Width, f.Height)
	if size < 1 || sigma <= 0 {
		copy(out.Data, f.Data)
		return out
	}

	kernel := gaussianKernel(size, sigma)
	half := size / 2

	tmp := make([]float64, len(f.Data))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			sum := 0.0
			for k := 0; k < size; k++ {
				sx := x + k - half
				if sx < 0 || sx >= f.Width {
					continue
				}
				sum += kernel[k] * f.Data[y*f.Width+sx]
			}
			tmp[y*f.Width+x] = sum
		}
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			sum := 0.0
			for k := 0; k < size; k++ {
				sy := y + k - half
				if sy < 0 || sy >= f.Height {
					continue
				}
				sum += kernel[k] * tmp[sy*f.Width+x]
			}
			out.Data[y*f.Width+x] = sum
		}
	}

	return out
}

// gaussianKernel returns a normalised 1D Gaussian of the given length
func gaussianKernel(size int, sigma float64) []float64 {
	kernel := make([]float64, size)
	centre := float64(size-1) / 2
	sum := 0.0
	for i := range kernel {
		d := float64(i) - centre
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// reflectIndex folds an out-of-range index back into [0, n)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
