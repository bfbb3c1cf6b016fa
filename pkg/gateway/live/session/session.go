// Package session runs one live websocket session: binary PCM frames feed
// the voice orchestrator, JSON control frames drive its lifecycle, and
// orchestrator events stream back to the client as JSON envelopes.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/agent"
	"github.com/voxloop-go/voxloop/pkg/core/live"
	"github.com/voxloop-go/voxloop/pkg/core/types"
	"github.com/voxloop-go/voxloop/pkg/gateway/live/protocol"
)

// Orchestrator is the slice of the voice orchestrator a session drives.
// Satisfied by *live.Orchestrator.
type Orchestrator interface {
	StartListening(ctx context.Context) error
	StopListening() error
	EndVoiceCapture()
	UpdateVADConfig(cfg live.VADConfig)
	ProcessAudioChunk(pcm []byte)
	Events() <-chan live.Event
	Dispose()
}

// TextAgent handles text turns submitted outside the voice path.
// Satisfied by *agent.Agent.
type TextAgent interface {
	SendMessage(ctx context.Context, text string) (<-chan types.GenerationChunk, error)
}

// Config holds per-session transport limits and timings.
type Config struct {
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	MaxSessionDuration  time.Duration
	OutboundQueueSize   int
}

// DefaultConfig returns the session transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxAudioFrameBytes:  64 * 1024,
		MaxJSONMessageBytes: 1 << 20,
		PingInterval:        20 * time.Second,
		WriteTimeout:        5 * time.Second,
		OutboundQueueSize:   128,
	}
}

type wsConn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
}

// Dependencies carries everything a session needs. The handler constructs
// one set per connection.
type Dependencies struct {
	Conn         wsConn
	Agent        TextAgent
	Orchestrator Orchestrator
	Capture      *ClientCapture
	SessionID    string
	Logger       zerolog.Logger
	Config       Config
}

// Session owns one websocket connection for its lifetime.
type Session struct {
	conn     wsConn
	agent    TextAgent
	orch     Orchestrator
	capture  *ClientCapture
	id       string
	cfg      Config
	logger   zerolog.Logger
	outbound chan []byte
}

// New validates the dependencies and builds a session.
func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, errors.New("session requires a connection")
	}
	if deps.Agent == nil || deps.Orchestrator == nil || deps.Capture == nil {
		return nil, errors.New("session requires an agent, an orchestrator, and a capture adapter")
	}
	cfg := deps.Config
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = DefaultConfig().OutboundQueueSize
	}
	return &Session{
		conn:     deps.Conn,
		agent:    deps.Agent,
		orch:     deps.Orchestrator,
		capture:  deps.Capture,
		id:       deps.SessionID,
		cfg:      cfg,
		logger:   deps.Logger.With().Str("component", "live_session").Str("session_id", deps.SessionID).Logger(),
		outbound: make(chan []byte, cfg.OutboundQueueSize),
	}, nil
}

// Run drives the session until the connection drops, the context ends, or
// the session duration limit is hit. The orchestrator is disposed on exit.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.cfg.MaxSessionDuration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, s.cfg.MaxSessionDuration)
		defer timeoutCancel()
	}
	defer s.orch.Dispose()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}

	writer := &outboundWriter{ws: s.conn, ctx: ctx, cfg: s.cfg, frames: s.outbound}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil {
			s.logger.Debug().Err(err).Msg("outbound writer stopped")
			cancel()
		}
	}()

	go s.pumpEvents(ctx)

	err := s.readLoop(ctx)
	cancel()
	<-writerDone
	return err
}

// pumpEvents forwards orchestrator events to the client.
func (s *Session) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.orch.Events():
			if !ok {
				return
			}
			s.enqueue(protocol.NewServerEvent(ev))
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read frame")
		}

		switch messageType {
		case websocket.BinaryMessage:
			if s.cfg.MaxAudioFrameBytes > 0 && len(data) > s.cfg.MaxAudioFrameBytes {
				s.enqueueError("frame_too_large", "audio frame exceeds the advertised limit", false)
				continue
			}
			s.orch.ProcessAudioChunk(data)
		case websocket.TextMessage:
			s.handleFrame(ctx, data)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		code := "bad_request"
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			code = de.Code
		}
		s.enqueueError(code, err.Error(), false)
		return
	}

	switch msg := decoded.(type) {
	case protocol.ClientHello:
		s.enqueueError("bad_request", "handshake already completed", false)
	case protocol.ClientControl:
		s.handleControl(ctx, msg)
	case protocol.ClientText:
		go s.runTextTurn(ctx, msg.Text)
	case protocol.ClientSnapshot:
		mediaType := msg.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		s.capture.SetSnapshot(types.NewImageBlock(mediaType, msg.Data))
	}
}

func (s *Session) handleControl(ctx context.Context, msg protocol.ClientControl) {
	switch msg.Action {
	case protocol.ActionStartListening:
		if err := s.orch.StartListening(ctx); err != nil {
			s.enqueueError("control_failed", err.Error(), false)
		}
	case protocol.ActionStopListening:
		if err := s.orch.StopListening(); err != nil {
			s.enqueueError("control_failed", err.Error(), false)
		}
	case protocol.ActionEndCapture:
		s.orch.EndVoiceCapture()
	case protocol.ActionUpdateVAD:
		s.orch.UpdateVADConfig(*msg.VAD)
	}
}

// runTextTurn submits a text turn directly to the agent and streams the
// response using the same event envelopes the voice path produces.
func (s *Session) runTextTurn(ctx context.Context, text string) {
	ch, err := s.agent.SendMessage(ctx, text)
	if err != nil {
		code := "turn_failed"
		if errors.Is(err, agent.ErrBusy) {
			code = "busy"
		}
		s.enqueueError(code, err.Error(), false)
		return
	}

	var usage *types.Usage
	var turnErr string
	for chunk := range ch {
		if chunk.TextDelta != "" {
			s.enqueue(protocol.NewServerEvent(&live.TextDeltaEvent{Delta: chunk.TextDelta}))
		}
		if chunk.AudioDelta != "" {
			s.enqueue(protocol.NewServerEvent(&live.AudioDeltaEvent{Data: chunk.AudioDelta}))
		}
		if len(chunk.ToolCalls) > 0 {
			s.enqueue(protocol.NewServerEvent(&live.ToolUseEvent{Calls: chunk.ToolCalls}))
		}
		if chunk.ToolResultsSummary != "" {
			s.enqueue(protocol.NewServerEvent(&live.ToolResultEvent{Summary: chunk.ToolResultsSummary}))
		}
		if chunk.Error != "" {
			turnErr = chunk.Error
		}
		if chunk.Finished {
			usage = chunk.Usage
		}
	}
	if turnErr != "" {
		s.enqueue(protocol.NewServerEvent(&live.ErrorEvent{Code: "turn_failed", Message: turnErr}))
		return
	}
	s.enqueue(protocol.NewServerEvent(&live.TurnFinishedEvent{Usage: usage}))
}

func (s *Session) enqueueError(code, message string, closeAfter bool) {
	s.enqueue(protocol.ServerError{Type: "error", Code: code, Message: message, Close: closeAfter})
}

// enqueue marshals one server frame onto the outbound queue, dropping it
// when the client falls more than the queue behind.
func (s *Session) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal outbound frame")
		return
	}
	select {
	case s.outbound <- data:
	default:
		s.logger.Warn().Msg("outbound queue full, dropping frame")
	}
}
