package models

import (
	"image"
	"math"
	"testing"
)

// TestLabelMapBasics verifies Max, Unique and IsContiguous
func TestLabelMapBasics(t *testing.T) {
	lm := &LabelMap{Width: 3, Height: 2, Labels: []int{4, 4, 1, 0, 1, 4}}

	if lm.Max() != 4 {
		t.Errorf("Expected max 4, got %d", lm.Max())
	}

	ids := lm.Unique()
	expected := []int{0, 1, 4}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %d unique ids, got %d", len(expected), len(ids))
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Unique()[%d]: expected %d, got %d", i, expected[i], ids[i])
		}
	}

	if lm.IsContiguous() {
		t.Error("Ids {0,1,4} should not be contiguous")
	}

	contiguous := &LabelMap{Width: 2, Height: 2, Labels: []int{2, 0, 1, 1}}
	if !contiguous.IsContiguous() {
		t.Error("Ids {0,1,2} should be contiguous")
	}

	if NewLabelMap(0, 0).Max() != -1 {
		t.Error("Empty map should report max -1")
	}
}

// TestCrop verifies cropping of label and float maps
func TestCrop(t *testing.T) {
	lm := NewLabelMap(4, 3)
	fm := NewFloatMap(4, 3)
	for i := range lm.Labels {
		lm.Labels[i] = i
		fm.Data[i] = float64(i) / 10
	}

	r := image.Rect(1, 1, 3, 3)
	cropped, err := lm.Crop(r)
	if err != nil {
		t.Fatalf("Failed to crop label map: %v", err)
	}
	want := []int{5, 6, 9, 10}
	for i, v := range want {
		if cropped.Labels[i] != v {
			t.Errorf("Cropped label %d: expected %d, got %d", i, v, cropped.Labels[i])
		}
	}

	croppedF, err := fm.Crop(r)
	if err != nil {
		t.Fatalf("Failed to crop float map: %v", err)
	}
	if croppedF.At(1, 1) != 1.0 {
		t.Errorf("Expected cropped value 1.0, got %f", croppedF.At(1, 1))
	}

	if _, err := lm.Crop(image.Rect(2, 2, 5, 3)); err == nil {
		t.Error("Crop outside the map should fail")
	}
	if _, err := lm.Crop(image.Rect(1, 1, 1, 1)); err == nil {
		t.Error("Empty crop should fail")
	}
}

// TestAffinityScale verifies that only the leading channels are scaled
func TestAffinityScale(t *testing.T) {
	a := NewAffinityMap(3, 2, 2)
	for i := range a.Data {
		a.Data[i] = 0.9
	}
	a.Scale(2, 1/1.2)

	if math.Abs(a.At(0, 0, 0)-0.75) > 1e-12 {
		t.Errorf("Channel 0 should be scaled to 0.75, got %f", a.At(0, 0, 0))
	}
	if math.Abs(a.At(1, 1, 1)-0.75) > 1e-12 {
		t.Errorf("Channel 1 should be scaled to 0.75, got %f", a.At(1, 1, 1))
	}
	if a.At(2, 0, 1) != 0.9 {
		t.Errorf("Channel 2 should be untouched, got %f", a.At(2, 0, 1))
	}
}

// TestCheckFinite verifies that non-finite values are fatal
func TestCheckFinite(t *testing.T) {
	CheckFinite("ok", []float64{0, 0.5, 1})

	defer func() {
		if recover() == nil {
			t.Error("CheckFinite should panic on NaN")
		}
	}()
	CheckFinite("bad", []float64{0, math.NaN()})
}

// TestAffinityCrop verifies that every channel is cropped alike
func TestAffinityCrop(t *testing.T) {
	a := NewAffinityMap(2, 4, 4)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}

	cropped, err := a.Crop(image.Rect(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Failed to crop affinities: %v", err)
	}
	if cropped.Channels != 2 || cropped.Width != 2 || cropped.Height != 2 {
		t.Fatalf("Unexpected cropped shape %dx%dx%d", cropped.Channels, cropped.Height, cropped.Width)
	}
	if cropped.At(0, 0, 0) != 9 {
		t.Errorf("Expected 9, got %f", cropped.At(0, 0, 0))
	}
	if cropped.At(1, 1, 1) != 16+14 {
		t.Errorf("Expected 30, got %f", cropped.At(1, 1, 1))
	}
}
