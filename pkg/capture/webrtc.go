package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"

	"github.com/koyakei/wind-meter-server/internal/log"
)

// WebRTCSource attaches to a GStreamer-style signalling server and
// consumes one producer's video+audio WebRTC stream. Video RTP payloads
// are assembled per access unit and decoded to JPEG; audio payloads are
// Opus-decoded into PCM16 chunks.
type WebRTCSource struct {
	signalURL string

	mu        sync.Mutex
	ws        *websocket.Conn
	pc        *webrtc.PeerConnection
	wsWriteMu sync.Mutex
	stream    *Stream
	cfg       Config
	streaming bool
	closed    atomic.Bool

	peerID     string
	producerID string
	sessionID  string

	decoder *frameDecoder
	seq     atomic.Uint64
}

// NewWebRTCSource creates a source connecting to the given signalling URL
// (e.g., "ws://meter-cam.local:8443").
func NewWebRTCSource(signalURL string) *WebRTCSource {
	return &WebRTCSource{
		signalURL: signalURL,
	}
}

// Start establishes signalling and the peer connection, then returns the
// event stream. A second Start while streaming returns ErrAlreadyStreaming.
func (s *WebRTCSource) Start(ctx context.Context, cfg Config, filter Filter) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSourceClosed
	}
	if s.streaming {
		return nil, ErrAlreadyStreaming
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, s.signalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: signalling connect: %w", err)
	}
	s.ws = ws

	if err := s.waitForWelcome(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("capture: welcome: %w", err)
	}
	if err := s.findProducer(filter); err != nil {
		ws.Close()
		return nil, fmt.Errorf("capture: find producer: %w", err)
	}

	s.cfg = cfg
	s.stream = NewStream(cfg.EventBuffer)
	s.decoder = newFrameDecoder(cfg.FrameInterval())

	if err := s.createPeerConnection(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("capture: peer connection: %w", err)
	}
	if err := s.startSession(); err != nil {
		s.pc.Close()
		ws.Close()
		return nil, fmt.Errorf("capture: start session: %w", err)
	}

	s.streaming = true
	go s.handleSignalling(ws, s.stream)

	log.Info("webrtc capture started",
		"producer", filter.Producer,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	)

	return s.stream, nil
}

func (s *WebRTCSource) waitForWelcome() error {
	s.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := s.ws.ReadMessage()
	s.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	s.peerID = welcome.PeerID
	return nil
}

func (s *WebRTCSource) findProducer(filter Filter) error {
	if err := s.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	s.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := s.ws.ReadMessage()
	s.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &listResp); err != nil {
		return err
	}

	for _, p := range listResp.Producers {
		if name, ok := p.Meta["name"]; ok && name == filter.Producer {
			if filter.Window != "" && p.Meta["window"] != filter.Window {
				continue
			}
			s.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found among %d producers", filter.Producer, len(listResp.Producers))
}

func (s *WebRTCSource) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	s.pc = pc

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err = pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}

	// The closures below belong to this session's stream; a restarted
	// source must never receive pushes from a stale track goroutine.
	stream := s.stream

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Debug("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			go s.handleVideoTrack(track, stream)
		case webrtc.RTPCodecTypeAudio:
			go s.handleAudioTrack(track, stream)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			s.sendICECandidate(candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("webrtc connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed {
			s.fail(stream, fmt.Errorf("capture: peer connection failed"))
		}
	})

	return nil
}

func (s *WebRTCSource) startSession() error {
	return s.writeJSON(map[string]string{
		"type":   "startSession",
		"peerId": s.producerID,
	})
}

func (s *WebRTCSource) handleSignalling(ws *websocket.Conn, stream *Stream) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			// A read error after a graceful Stop is the normal exit;
			// fail only faults the session that is still active.
			s.fail(stream, fmt.Errorf("capture: signalling: %w", err))
			return
		}

		var baseMsg struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		json.Unmarshal(msg, &baseMsg)

		switch baseMsg.Type {
		case "sessionStarted":
			s.sessionID = baseMsg.SessionID
		case "peer":
			s.handlePeerMessage(msg)
		case "endSession":
			s.Stop()
			return
		}
	}
}

func (s *WebRTCSource) handlePeerMessage(msg []byte) {
	var peerMsg map[string]interface{}
	json.Unmarshal(msg, &peerMsg)

	if sdpData, ok := peerMsg["sdp"]; ok {
		sdpMap, _ := sdpData.(map[string]interface{})
		sdpType, _ := sdpMap["type"].(string)
		sdpStr, _ := sdpMap["sdp"].(string)

		if sdpType == "offer" {
			offer := webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer,
				SDP:  sdpStr,
			}
			if err := s.pc.SetRemoteDescription(offer); err != nil {
				log.Warn("SetRemoteDescription failed", "error", err)
				return
			}
			answer, err := s.pc.CreateAnswer(nil)
			if err != nil {
				log.Warn("CreateAnswer failed", "error", err)
				return
			}
			if err := s.pc.SetLocalDescription(answer); err != nil {
				log.Warn("SetLocalDescription failed", "error", err)
				return
			}
			s.sendSDP(answer)
		}
	}

	if iceData, ok := peerMsg["ice"]; ok {
		iceMap, _ := iceData.(map[string]interface{})
		candidate, _ := iceMap["candidate"].(string)

		var sdpMid string
		if mid, ok := iceMap["sdpMid"]; ok && mid != nil {
			sdpMid, _ = mid.(string)
		}
		var sdpMLineIndex uint16
		if idx, ok := iceMap["sdpMLineIndex"]; ok && idx != nil {
			if f, ok := idx.(float64); ok {
				sdpMLineIndex = uint16(f)
			}
		}

		s.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     candidate,
			SDPMid:        &sdpMid,
			SDPMLineIndex: &sdpMLineIndex,
		})
	}
}

func (s *WebRTCSource) sendSDP(sdp webrtc.SessionDescription) {
	s.writeJSON(map[string]interface{}{
		"type":      "peer",
		"sessionId": s.sessionID,
		"sdp": map[string]string{
			"type": sdp.Type.String(),
			"sdp":  sdp.SDP,
		},
	})
}

func (s *WebRTCSource) sendICECandidate(candidate *webrtc.ICECandidate) {
	if s.sessionID == "" {
		return
	}
	init := candidate.ToJSON()
	s.writeJSON(map[string]interface{}{
		"type":      "peer",
		"sessionId": s.sessionID,
		"ice": map[string]interface{}{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

func (s *WebRTCSource) writeJSON(v interface{}) error {
	s.wsWriteMu.Lock()
	defer s.wsWriteMu.Unlock()
	return s.ws.WriteJSON(v)
}

// handleVideoTrack assembles RTP payloads into access units (split on
// the RTP marker bit) and pushes decoded JPEG frames into the stream.
func (s *WebRTCSource) handleVideoTrack(track *webrtc.TrackRemote, stream *Stream) {
	var nalBuffer bytes.Buffer

	for {
		var pkt *rtp.Packet
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if nalBuffer.Len() > 0 {
				// Track ended mid access unit.
				stream.PushVideo(InvalidFrame, StatusIncomplete)
			}
			return
		}

		nalBuffer.Write(pkt.Payload)
		if !pkt.Marker {
			continue
		}

		jpeg, err := s.decoder.decodeNAL(nalBuffer.Bytes())
		nalBuffer.Reset()
		if err != nil {
			log.Warn("frame decode failed", "error", err)
			continue
		}
		if jpeg == nil {
			continue
		}

		s.mu.Lock()
		cfg := s.cfg
		s.mu.Unlock()

		stream.PushVideo(Frame{
			Image:        jpeg,
			ContentRect:  image.Rect(0, 0, cfg.Width, cfg.Height),
			ContentScale: cfg.ContentScale,
			ScaleFactor:  cfg.ScaleFactor,
			Seq:          s.seq.Add(1),
			Timestamp:    time.Now(),
		}, StatusComplete)
	}
}

// handleAudioTrack Opus-decodes RTP payloads into PCM16 chunks.
func (s *WebRTCSource) handleAudioTrack(track *webrtc.TrackRemote, stream *Stream) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	dec, err := opus.NewDecoder(cfg.AudioSampleRate, cfg.AudioChannels)
	if err != nil {
		log.Error("opus decoder init failed", "error", err)
		return
	}

	// 120ms is the maximum Opus frame duration.
	pcm := make([]int16, cfg.AudioSampleRate/1000*120*cfg.AudioChannels)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			stream.PushAudio(AudioChunk{}, StatusIncomplete)
			continue
		}

		samples := make([]int16, n*cfg.AudioChannels)
		copy(samples, pcm[:n*cfg.AudioChannels])
		stream.PushAudio(AudioChunk{
			Samples:    samples,
			SampleRate: cfg.AudioSampleRate,
			Channels:   cfg.AudioChannels,
		}, StatusComplete)
	}
}

// fail faults the given session's stream. A stale goroutine calling in
// after Stop (or after a restart) is a no-op.
func (s *WebRTCSource) fail(stream *Stream, err error) {
	s.mu.Lock()
	active := s.streaming && s.stream == stream
	if active {
		s.streaming = false
	}
	s.mu.Unlock()

	if !active {
		return
	}
	stream.Fail(err)
	s.release()
}

// Stop terminates the session and finalizes the stream normally.
// It is idempotent; the source accepts a new Start afterwards.
func (s *WebRTCSource) Stop() error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return nil
	}
	s.streaming = false
	stream := s.stream
	s.sessionID = ""
	s.producerID = ""
	s.mu.Unlock()

	err := s.release()
	stream.Close()
	return err
}

// Close stops the session and releases the source for good.
// After Close it cannot be restarted.
func (s *WebRTCSource) Close() error {
	s.closed.Store(true)
	return s.Stop()
}

func (s *WebRTCSource) release() error {
	var firstErr error
	if s.pc != nil {
		if err := s.pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.ws != nil {
		if err := s.ws.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reconfigure asks the producer for a new capture geometry.
// The session continues on its prior configuration if the request fails.
func (s *WebRTCSource) Reconfigure(cfg Config, filter Filter) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	s.mu.Unlock()

	err := s.writeJSON(map[string]interface{}{
		"type":      "configure",
		"sessionId": s.sessionID,
		"video": map[string]int{
			"width":     cfg.Width,
			"height":    cfg.Height,
			"framerate": cfg.Framerate,
		},
	})
	if err != nil {
		return fmt.Errorf("capture: reconfigure: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Name returns "webrtc".
func (s *WebRTCSource) Name() string {
	return "webrtc"
}

// Ensure WebRTCSource implements Source.
var _ Source = (*WebRTCSource)(nil)
