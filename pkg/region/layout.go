// Package region crops fixed digit regions out of captured frames.
// The layout is static data: each named field maps to a pixel rectangle
// against a fixed reference frame size.
package region

import (
	"fmt"
	"image"
)

// Field identifies one recognized digit region of the meter display.
type Field string

const (
	// FieldTens is the tens digit of the reading.
	FieldTens Field = "tensDigit"
	// FieldPrimary is the ones digit of the reading.
	FieldPrimary Field = "primaryDigit"
	// FieldFraction is the first fractional digit of the reading.
	FieldFraction Field = "fractionalDigit"
)

// Fields lists every field of the composite reading, in display order.
var Fields = []Field{FieldTens, FieldPrimary, FieldFraction}

// Spec binds one field to its fixed crop rectangle.
type Spec struct {
	Field Field           `json:"field"`
	Rect  image.Rectangle `json:"rect"`
}

// Layout is the full set of region specs against a reference frame size.
type Layout struct {
	// Reference is the frame size the rectangles are expressed in.
	Reference image.Point `json:"reference"`

	// Specs are the per-field crop rectangles.
	Specs []Spec `json:"specs"`
}

// DefaultLayout returns the meter display layout: three digit cells in
// the middle band of a 1920x1080 frame.
func DefaultLayout() Layout {
	return Layout{
		Reference: image.Pt(1920, 1080),
		Specs: []Spec{
			{Field: FieldTens, Rect: image.Rect(760, 420, 880, 600)},
			{Field: FieldPrimary, Rect: image.Rect(890, 420, 1010, 600)},
			{Field: FieldFraction, Rect: image.Rect(1060, 420, 1180, 600)},
		},
	}
}

// Validate checks that every spec names a known field, has a non-empty
// rectangle, and sits inside the reference bounds.
func (l Layout) Validate() error {
	if l.Reference.X <= 0 || l.Reference.Y <= 0 {
		return fmt.Errorf("region: reference size must be positive, got %v", l.Reference)
	}

	bounds := image.Rect(0, 0, l.Reference.X, l.Reference.Y)
	seen := make(map[Field]bool, len(l.Specs))
	for _, spec := range l.Specs {
		if spec.Field == "" {
			return fmt.Errorf("region: spec with empty field")
		}
		if seen[spec.Field] {
			return fmt.Errorf("region: duplicate spec for field %s", spec.Field)
		}
		seen[spec.Field] = true

		if spec.Rect.Empty() {
			return fmt.Errorf("region: empty rect for field %s", spec.Field)
		}
		if !spec.Rect.In(bounds) {
			return fmt.Errorf("region: rect %v for field %s outside reference %v",
				spec.Rect, spec.Field, l.Reference)
		}
	}
	return nil
}

// FieldsOf returns the fields the layout defines, in spec order.
func (l Layout) FieldsOf() []Field {
	fields := make([]Field, 0, len(l.Specs))
	for _, spec := range l.Specs {
		fields = append(fields, spec.Field)
	}
	return fields
}
