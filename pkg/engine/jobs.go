package engine

import (
	"context"
	"strings"

	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/reading"
	"github.com/koyakei/wind-meter-server/pkg/region"
)

// recognitionHint narrows what the recognizer should look for in a
// meter digit cell.
const recognitionHint = "single digit"

// recognizeField runs one recognition job for one (frame, field) pair.
// Jobs for a frame run concurrently and deliver in completion order;
// the aggregator attributes each result to its originating frame only.
// A failed or empty recognition delivers the default value so a frame
// can never carry a stale digit from an earlier frame.
func (e *Engine) recognizeField(ctx context.Context, frameID uint64, field region.Field, img []byte) {
	jctx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()

	text, err := e.recognizer.Recognize(jctx, img, recognitionHint)
	value := strings.TrimSpace(text)
	if err != nil || value == "" {
		if err != nil {
			log.Debug("recognition failed, defaulting field",
				"frame", frameID, "field", field, "error", err)
		}
		value = reading.DefaultValue
	}

	e.agg.Deliver(frameID, field, value)
}
