package region

import (
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/koyakei/wind-meter-server/pkg/capture"
)

// encodedFrame builds a real JPEG frame of the given size.
func encodedFrame(t *testing.T, width, height int) capture.Frame {
	t.Helper()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return capture.Frame{
		Image:        data,
		ContentRect:  image.Rect(0, 0, width, height),
		ContentScale: 1.0,
		ScaleFactor:  1.0,
		Seq:          1,
		Timestamp:    time.Now(),
	}
}

func TestExtractor_Extract(t *testing.T) {
	ex, err := NewExtractor(DefaultLayout())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	crops := ex.Extract(encodedFrame(t, 1920, 1080))
	if len(crops) != 3 {
		t.Fatalf("Expected 3 crops, got %d", len(crops))
	}
	for _, field := range Fields {
		img, ok := crops[field]
		if !ok {
			t.Errorf("Missing crop for field %s", field)
			continue
		}
		if len(img) == 0 {
			t.Errorf("Empty crop for field %s", field)
		}
	}
}

func TestExtractor_OmitsOutOfBoundsFields(t *testing.T) {
	ex, err := NewExtractor(DefaultLayout())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	// A frame narrower than the layout reference: only the tens cell fits.
	crops := ex.Extract(encodedFrame(t, 900, 1080))
	if _, ok := crops[FieldTens]; !ok {
		t.Error("Expected the tens cell to fit a 900px frame")
	}
	if _, ok := crops[FieldPrimary]; ok {
		t.Error("Primary cell should be omitted for a 900px frame")
	}
	if _, ok := crops[FieldFraction]; ok {
		t.Error("Fraction cell should be omitted for a 900px frame")
	}
}

func TestExtractor_InvalidFrame(t *testing.T) {
	ex, err := NewExtractor(DefaultLayout())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	if crops := ex.Extract(capture.InvalidFrame); len(crops) != 0 {
		t.Errorf("Invalid frame should yield no crops, got %d", len(crops))
	}

	garbage := encodedFrame(t, 1920, 1080)
	garbage.Image = []byte{1, 2, 3}
	if crops := ex.Extract(garbage); len(crops) != 0 {
		t.Errorf("Undecodable frame should yield no crops, got %d", len(crops))
	}
}
