// Package report delivers finished display strings to the remote
// reading endpoint. Reporting is fire-and-forget from the pipeline's
// point of view: a failed report is logged and dropped, never fed back
// into recognition.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/koyakei/wind-meter-server/internal/log"
)

// ErrBadStatus is returned when the endpoint answers with a non-2xx status.
var ErrBadStatus = errors.New("report: unexpected status")

// Reporter delivers one display string to the remote endpoint.
type Reporter interface {
	Report(ctx context.Context, display string) error
}

// reportTimeout bounds one asynchronous report delivery.
const reportTimeout = 10 * time.Second

// Async sends the display string on its own goroutine, detached from the
// caller. Failures are logged and dropped.
func Async(r Reporter, display string) {
	if r == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		if err := r.Report(ctx, display); err != nil {
			log.Warn("reading report failed", "display", display, "error", err)
		}
	}()
}
