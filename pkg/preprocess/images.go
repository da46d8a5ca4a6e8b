package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"rlforseg/internal/models"
)

// imageExtensions lists the file types picked up from the input directories
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// listImages maps the numeric part of every image file name in dir to its
// path. Two files carrying the same number are an error.
func listImages(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	images := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		n := extractNumber(entry.Name())
		if prev, ok := images[n]; ok {
			return nil, fmt.Errorf("files %s and %s share image number %d",
				filepath.Base(prev), entry.Name(), n)
		}
		images[n] = filepath.Join(dir, entry.Name())
	}
	return images, nil
}

// sortedNumbers returns the keys of images in increasing order
func sortedNumbers(images map[int]string) []int {
	numbers := make([]int, 0, len(images))
	for n := range images {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// loadImage loads a PNG or JPEG image from a file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(file)
	default:
		return png.Decode(file)
	}
}

// imageToFloat converts the first channel of an image to a [0,1] map
func imageToFloat(img image.Image) *models.FloatMap {
	bounds := img.Bounds()
	f := models.NewFloatMap(bounds.Dx(), bounds.Dy())

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Convert 16-bit color to float64 (0-1 range)
			f.Data[y*f.Width+x] = float64(r) / 65535.0
		}
	}

	return f
}

// imageToLabels reads instance ids stored as gray values. 16-bit images keep
// their ids, 8-bit images are read on the same 16-bit scale, which preserves
// which pixels share an id.
func imageToLabels(img image.Image) *models.LabelMap {
	bounds := img.Bounds()
	lm := models.NewLabelMap(bounds.Dx(), bounds.Dy())

	for y := 0; y < lm.Height; y++ {
		for x := 0; x < lm.Width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			lm.Labels[y*lm.Width+x] = int(g.Y)
		}
	}

	return lm
}

// LoadLabels reads an instance label image (PNG or JPEG) stored as gray ids
func LoadLabels(path string) (*models.LabelMap, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load label image %s: %w", path, err)
	}
	return imageToLabels(img), nil
}
