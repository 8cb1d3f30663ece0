// Wind meter reader - captures the meter display, recognizes the digits
// and reports the reading upstream.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/koyakei/wind-meter-server/internal/config"
	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/audiolevel"
	"github.com/koyakei/wind-meter-server/pkg/capture"
	"github.com/koyakei/wind-meter-server/pkg/engine"
	"github.com/koyakei/wind-meter-server/pkg/ocr"
	"github.com/koyakei/wind-meter-server/pkg/region"
	"github.com/koyakei/wind-meter-server/pkg/report"
	"github.com/koyakei/wind-meter-server/pkg/web"
)

func main() {
	signalHost := flag.String("signal-host", "localhost", "Capture signalling server host")
	producer := flag.String("producer", "", "Producer name to attach to (first available if empty)")
	window := flag.String("window", "", "Window title to narrow capture to")
	flag.Parse()

	log.Init(config.LogLevel())

	reportURL := config.ReportURL()
	signalURL := config.SignalURL(*signalHost)

	log.Info("starting wind meter reader",
		"signal_url", signalURL,
		"report_url", reportURL,
		"station", config.StationKey())

	extractor, err := region.NewExtractor(region.DefaultLayout())
	if err != nil {
		log.Error("invalid region layout", "error", err)
		os.Exit(1)
	}

	recognizer, err := buildRecognizer()
	if err != nil {
		log.Error("recognizer setup failed", "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	reporter := report.NewHTTPReporter(reportURL, config.StationKey())
	src := capture.NewWebRTCSource(signalURL)

	eng, err := engine.New(src, audiolevel.NewMeter(), extractor, recognizer,
		reporter, engine.DefaultConfig())
	if err != nil {
		log.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(config.WebPort(), eng)
	eng.OnReading = server.PublishReading

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	filter := capture.Filter{Producer: *producer, Window: *window}
	frames, err := eng.Start(ctx, capture.DefaultConfig(), filter)
	if err != nil {
		log.Error("capture start failed", "error", err)
		os.Exit(1)
	}

	server.StartAsync()
	defer server.Shutdown()

	// Drain the validated frame sequence until the stream ends,
	// forwarding previews to any dashboard clients watching.
	for f := range frames {
		server.PublishFrame(f)
	}

	if err := eng.Err(); err != nil {
		log.Error("capture ended", "error", err)
		os.Exit(1)
	}
	log.Info("capture ended", "stats", eng.Stats())
}

// buildRecognizer picks the vision recognizer when an API key is
// configured, otherwise a mock that always reads zeros.
func buildRecognizer() (ocr.Recognizer, error) {
	apiKey := config.OCRAPIKey()
	if apiKey == "" {
		log.Warn("no OCR API key set, using mock recognizer")
		return ocr.NewMockRecognizer(), nil
	}
	cfg := ocr.DefaultVisionConfig()
	cfg.APIKey = apiKey
	cfg.BaseURL = config.OCRBaseURL(cfg.BaseURL)
	return ocr.NewVisionRecognizer(cfg)
}
