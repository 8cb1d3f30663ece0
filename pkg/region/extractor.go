package region

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/capture"
)

// Extractor crops a frame into per-field sub-images per a static Layout.
// Extraction is a pure function of the frame and the layout; a frame
// smaller than a region yields no sub-image for that field (logged,
// never fatal) so the aggregator can default it.
type Extractor struct {
	layout Layout
}

// NewExtractor creates an extractor for the given layout.
func NewExtractor(layout Layout) (*Extractor, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{layout: layout}, nil
}

// Layout returns the extractor's layout.
func (e *Extractor) Layout() Layout {
	return e.layout
}

// Extract decodes the frame and returns one JPEG sub-image per field
// whose rectangle fits inside the frame. Fields whose rectangles fall
// outside the frame are omitted from the result.
func (e *Extractor) Extract(frame capture.Frame) map[Field][]byte {
	out := make(map[Field][]byte, len(e.layout.Specs))
	if !frame.Valid() {
		return out
	}

	img, err := gocv.IMDecode(frame.Image, gocv.IMReadColor)
	if err != nil {
		log.Warn("frame decode failed", "seq", frame.Seq, "error", err)
		return out
	}
	defer img.Close()

	if img.Empty() {
		log.Warn("frame decoded empty", "seq", frame.Seq)
		return out
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	for _, spec := range e.layout.Specs {
		if !spec.Rect.In(bounds) {
			log.Warn("region outside frame, defaulting field",
				"field", spec.Field,
				"rect", fmt.Sprintf("%v", spec.Rect),
				"frame", fmt.Sprintf("%dx%d", img.Cols(), img.Rows()),
			)
			continue
		}

		crop := img.Region(spec.Rect)
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
		crop.Close()
		if err != nil {
			log.Warn("region encode failed", "field", spec.Field, "error", err)
			continue
		}
		// GetBytes is backed by native memory; copy before releasing.
		data := buf.GetBytes()
		sub := make([]byte, len(data))
		copy(sub, data)
		buf.Close()
		out[spec.Field] = sub
	}

	return out
}
