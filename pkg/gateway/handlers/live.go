package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/agent"
	corelive "github.com/voxloop-go/voxloop/pkg/core/live"
	"github.com/voxloop-go/voxloop/pkg/core/llm"
	"github.com/voxloop-go/voxloop/pkg/core/tools"
	"github.com/voxloop-go/voxloop/pkg/gateway/live/protocol"
	"github.com/voxloop-go/voxloop/pkg/gateway/live/session"
)

// LiveHandler handles /v1/live websocket sessions. Each connection gets its
// own agent, conversation history, and voice orchestrator, so sessions are
// fully isolated from one another.
type LiveHandler struct {
	Client       llm.ModelClient
	Tools        *tools.Set
	LLM          llm.Config
	Agent        agent.Config
	Orchestrator corelive.OrchestratorConfig
	Session      session.Config
	Logger       zerolog.Logger

	// HandshakeTimeout bounds the wait for the hello frame. Default: 5s.
	HandshakeTimeout time.Duration
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}

	llmCfg := h.LLM
	if strings.TrimSpace(hello.Model) != "" {
		llmCfg.Model = hello.Model
	}
	agentCfg := h.Agent
	if strings.TrimSpace(hello.SystemPrompt) != "" {
		agentCfg.SystemPrompt = hello.SystemPrompt
	}

	handler := llm.NewHandler(h.Client, h.Tools, llmCfg, h.Logger)
	a := agent.New(handler, agentCfg, h.Logger)
	capture := session.NewClientCapture()
	orch := corelive.New(a, capture, h.Orchestrator, h.Logger)
	if err := orch.Initialize(r.Context()); err != nil {
		h.writeWSError(conn, "internal", "failed to initialize session", true)
		return
	}

	sessionID := "s_" + randHex(8)
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		AudioIn: protocol.AudioFormat{
			Encoding:     protocol.EncodingPCMS16LE,
			SampleRateHz: h.Orchestrator.Audio.SampleRate,
			Channels:     h.Orchestrator.Audio.Channels,
		},
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  h.Session.MaxAudioFrameBytes,
			MaxJSONMessageBytes: int(h.Session.MaxJSONMessageBytes),
			SilenceDurationMs:   h.Orchestrator.VAD.SilenceDurationMs,
			StartupGraceMs:      h.Orchestrator.StartupGraceMs,
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s, err := session.New(session.Dependencies{
		Conn:         conn,
		Agent:        a,
		Orchestrator: orch,
		Capture:      capture,
		SessionID:    sessionID,
		Logger:       h.Logger,
		Config:       h.Session,
	})
	if err != nil {
		h.writeWSError(conn, "internal", "failed to initialize session", true)
		return
	}

	if err := s.Run(r.Context()); err != nil {
		h.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("live session ended with error")
	}
}

// readHello reads and validates the mandatory first frame.
func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	var zero protocol.ClientHello

	handshakeTimeout := h.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello", true)
		return zero, false
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be hello", true)
		return zero, false
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(conn, "bad_request", "invalid hello frame", true)
		return zero, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello", true)
		return zero, false
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "unsupported_version", "unsupported protocol_version", true)
		return zero, false
	}

	audio := h.Orchestrator.Audio
	if audio.SampleRate == 0 {
		audio = corelive.DefaultAudioConfig()
	}
	if strings.TrimSpace(hello.AudioIn.Encoding) != protocol.EncodingPCMS16LE ||
		hello.AudioIn.SampleRateHz != audio.SampleRate ||
		hello.AudioIn.Channels != audio.Channels {
		msg := fmt.Sprintf("audio_in must be %s @%dHz with %d channel(s)", protocol.EncodingPCMS16LE, audio.SampleRate, audio.Channels)
		h.writeWSError(conn, "unsupported", msg, true)
		return zero, false
	}
	return hello, true
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
