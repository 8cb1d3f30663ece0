// Package config provides configuration helpers for wind-meter-server commands.
package config

import (
	"fmt"
	"os"
)

// Default deployment configuration.
const (
	DefaultSignalPort = "8443"
	DefaultWebPort    = "8088"
	DefaultStationKey = "wind_speed_hayama"
)

// ReportURL returns the reading report endpoint from REPORT_URL env var.
// Exits with a usage message if not set.
func ReportURL() string {
	url := os.Getenv("REPORT_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "Error: REPORT_URL environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: REPORT_URL=https://example.com/api/stations go run ./cmd/wind-meter")
		os.Exit(1)
	}
	return url
}

// SignalURL returns the capture signalling server URL from SIGNAL_URL env var.
// Falls back to ws://<host>:8443 built from SIGNAL_HOST if not set.
func SignalURL(defaultHost string) string {
	if url := os.Getenv("SIGNAL_URL"); url != "" {
		return url
	}
	host := os.Getenv("SIGNAL_HOST")
	if host == "" {
		host = defaultHost
	}
	return fmt.Sprintf("ws://%s:%s", host, DefaultSignalPort)
}

// StationKey returns the report payload key from STATION_KEY env var or default.
func StationKey() string {
	if key := os.Getenv("STATION_KEY"); key != "" {
		return key
	}
	return DefaultStationKey
}

// WebPort returns the dashboard port from WEB_PORT env var or default.
func WebPort() string {
	if port := os.Getenv("WEB_PORT"); port != "" {
		return port
	}
	return DefaultWebPort
}

// LogLevel returns the log level from LOG_LEVEL env var or "info".
func LogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// OCRAPIKey returns the vision OCR API key from OCR_API_KEY env var.
// Empty means the mock recognizer should be used.
func OCRAPIKey() string {
	return os.Getenv("OCR_API_KEY")
}

// OCRBaseURL returns the vision OCR endpoint base from OCR_BASE_URL env var.
func OCRBaseURL(defaultURL string) string {
	if url := os.Getenv("OCR_BASE_URL"); url != "" {
		return url
	}
	return defaultURL
}
