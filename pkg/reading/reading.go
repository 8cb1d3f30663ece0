// Package reading merges per-region recognition results into composite
// meter readings, one per frame.
//
// Recognition jobs for a frame complete concurrently and in no fixed
// order; jobs from different frames may interleave. The Aggregator keys
// every in-flight reading by frame ID and serializes all writes through
// one lock, so a result can only ever land in its own frame's reading.
package reading

import (
	"github.com/koyakei/wind-meter-server/pkg/region"
)

// DefaultValue is the value a field holds until its first result lands.
const DefaultValue = "0"

// Reading maps each display field to its latest recognized value.
// Exactly the layout's fields are present; unset fields read DefaultValue.
type Reading map[region.Field]string

// New returns a Reading with every field defaulted.
func New() Reading {
	r := make(Reading, len(region.Fields))
	for _, f := range region.Fields {
		r[f] = DefaultValue
	}
	return r
}

// Set records a field value. Empty values fall back to the default so a
// failed recognition can never leave a stale value in place.
func (r Reading) Set(f region.Field, v string) {
	if v == "" {
		v = DefaultValue
	}
	r[f] = v
}

// Clone returns an independent copy.
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for f, v := range r {
		out[f] = v
	}
	return out
}

// DisplayString derives the formatted value: tens, primary, then a
// decimal point and the fractional digit.
func (r Reading) DisplayString() string {
	return r[region.FieldTens] + r[region.FieldPrimary] + "." + r[region.FieldFraction]
}
