// Package web provides a real-time status dashboard for the meter reader.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/koyakei/wind-meter-server/internal/log"
	"github.com/koyakei/wind-meter-server/pkg/capture"
	"github.com/koyakei/wind-meter-server/pkg/engine"
	"github.com/koyakei/wind-meter-server/pkg/hub"
	"github.com/koyakei/wind-meter-server/pkg/reading"
)

// ReadingEvent is one completed reading pushed to dashboard clients.
type ReadingEvent struct {
	Time    string `json:"time"`
	FrameID uint64 `json:"frame_id"`
	Display string `json:"display"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	engine *engine.Engine

	readingsHub *hub.Hub
	framesHub   *hub.Hub
}

// NewServer creates the dashboard around a running engine.
func NewServer(port string, eng *engine.Engine) *Server {
	s := &Server{
		port:        port,
		engine:      eng,
		readingsHub: hub.New("readings"),
		framesHub:   hub.New("frames"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Wind Meter Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/reading", s.handleReading)
	api.Get("/levels", s.handleLevels)
	api.Get("/stats", s.handleStats)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/readings", websocket.New(s.handleReadingsWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	s.app = app
	return s
}

// Start starts the dashboard server (blocking).
func (s *Server) Start() error {
	go s.readingsHub.Run()
	go s.framesHub.Run()
	log.Info("dashboard listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the dashboard server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server error", "error", err)
		}
	}()
}

// Shutdown stops the dashboard server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// PublishReading broadcasts a completed reading to websocket clients.
// Wire this to engine.OnReading.
func (s *Server) PublishReading(frameID uint64, display string) {
	s.readingsHub.BroadcastJSON(ReadingEvent{
		Time:    time.Now().Format("15:04:05"),
		FrameID: frameID,
		Display: display,
	})
}

// PublishFrame broadcasts a frame preview to websocket clients. With no
// clients connected it skips the copy into the broadcast channel entirely.
func (s *Server) PublishFrame(f capture.Frame) {
	if s.framesHub.ClientCount() == 0 {
		return
	}
	s.framesHub.BroadcastBinary(f.Image)
}

func (s *Server) handleReading(c *fiber.Ctx) error {
	r, frameID, ok := s.engine.Snapshot()
	if !ok {
		r = reading.New()
	}
	return c.JSON(fiber.Map{
		"frame_id": frameID,
		"display":  r.DisplayString(),
		"fields":   r,
		"has_data": ok,
	})
}

func (s *Server) handleLevels(c *fiber.Ctx) error {
	return c.JSON(s.engine.Levels())
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.engine.Stats())
}

func (s *Server) handleReadingsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.readingsHub, conn)
	client.Run()
}

func (s *Server) handleFramesWS(conn *websocket.Conn) {
	client := hub.NewClient(s.framesHub, conn)
	client.Run()
}
