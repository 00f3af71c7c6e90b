// Package session runs the media bridge for one telephony connection:
// it reads media-stream frames from the phone leg, relays audio to and
// from the realtime AI endpoint, and captures structured tool results.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicebridge/pkg/audio"
	"github.com/vango-go/voicebridge/pkg/bridge/call"
	"github.com/vango-go/voicebridge/pkg/bridge/metrics"
	"github.com/vango-go/voicebridge/pkg/bridge/prompt"
	"github.com/vango-go/voicebridge/pkg/bridge/protocol"
	"github.com/vango-go/voicebridge/pkg/bridge/upstream"
)

// State is the lifecycle phase of one bridged call.
type State int32

const (
	// StateAwaitingStart means the telephony socket is open but the
	// start frame has not arrived.
	StateAwaitingStart State = iota
	// StateConnectingUpstream means the start frame arrived and the
	// dial to the AI endpoint is in flight.
	StateConnectingUpstream
	// StateBuffering means the upstream socket is open but the session
	// configuration has not been confirmed; inbound audio accumulates.
	StateBuffering
	// StateStreaming means audio flows in both directions.
	StateStreaming
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateConnectingUpstream:
		return "connecting_upstream"
	case StateBuffering:
		return "buffering"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal call statuses reported to metrics.
const (
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusConnectFailed = "upstream_connect_failed"
)

// UpstreamConn is the slice of the upstream connection the bridge uses.
type UpstreamConn interface {
	ConfigureSession(instructions string) error
	AppendAudio(audioB64 string) error
	AckToolCall(callID string) error
	ReadEvent() (any, error)
	Close() error
}

// DialFunc opens the upstream connection. Injected so tests can supply
// a fake endpoint.
type DialFunc func(ctx context.Context, cfg upstream.Config) (UpstreamConn, error)

// DefaultDial connects to the real AI endpoint.
func DefaultDial(ctx context.Context, cfg upstream.Config) (UpstreamConn, error) {
	return upstream.Connect(ctx, cfg)
}

type Config struct {
	Upstream        upstream.Config
	MaxMessageBytes int64
	WriteTimeout    time.Duration
}

type Dependencies struct {
	Conn     *websocket.Conn
	Logger   *slog.Logger
	Registry *call.Registry
	Metrics  *metrics.Metrics
	Dial     DialFunc
	Config   Config
	Now      func() time.Time
}

// Bridge relays one call between the telephony socket and the AI
// endpoint. Run drives the telephony read loop; a second goroutine
// consumes upstream events once the dial completes.
type Bridge struct {
	conn     *websocket.Conn
	logger   *slog.Logger
	registry *call.Registry
	metrics  *metrics.Metrics
	dial     DialFunc
	cfg      Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	sess       *call.Session
	up         UpstreamConn
	unregister func()
	startedAt  time.Time
	status     string

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(deps Dependencies) (*Bridge, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Dial == nil {
		deps.Dial = DefaultDial
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		conn:     deps.Conn,
		logger:   deps.Logger,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		dial:     deps.Dial,
		cfg:      deps.Config,
		now:      deps.Now,
		ctx:      ctx,
		cancel:   cancel,
		status:   StatusFailed,
	}, nil
}

// State reports the current lifecycle phase.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Session returns the per-call state once a start frame has arrived.
func (b *Bridge) Session() *call.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess
}

// Run consumes the telephony socket until it closes or the call ends.
// It always tears down both legs before returning.
func (b *Bridge) Run() error {
	defer b.shutdown()

	if b.cfg.MaxMessageBytes > 0 {
		b.conn.SetReadLimit(b.cfg.MaxMessageBytes)
	}

	for {
		select {
		case <-b.ctx.Done():
			return nil
		default:
		}

		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// A clean close without a stop frame still ends the
				// call normally.
				b.setStatus(StatusCompleted)
				return nil
			}
			select {
			case <-b.ctx.Done():
				return nil
			default:
			}
			b.logger.Debug("telephony read ended", "error", err)
			return nil
		}

		frame, decErr := protocol.DecodeMediaFrame(data)
		if decErr != nil {
			b.metrics.RecordDroppedFrame("media")
			b.logger.Warn("dropping malformed media frame", "error", decErr)
			continue
		}

		switch f := frame.(type) {
		case protocol.MediaConnected:
			b.logger.Debug("telephony stream connected", "protocol", f.Protocol, "version", f.Version)
		case protocol.MediaStart:
			b.handleStart(f)
		case protocol.MediaAudio:
			b.handleAudio(f)
		case protocol.MediaStop:
			b.logger.Info("telephony stream stopped", "callId", f.CallID, "streamId", f.StreamID)
			b.setStatus(StatusCompleted)
			return nil
		case protocol.MediaUnknown:
			b.logger.Debug("ignoring unhandled media event", "event", f.Event)
		}
	}
}

func (b *Bridge) handleStart(f protocol.MediaStart) {
	b.mu.Lock()
	if b.state != StateAwaitingStart {
		state := b.state
		b.mu.Unlock()
		b.logger.Warn("duplicate start frame ignored", "callId", f.CallID, "state", state.String())
		return
	}

	bc := call.BusinessContext{
		TargetName:      f.BusinessName,
		TaskDescription: f.TaskDescription,
		Category:        f.Category,
		CallerIdentity:  f.Caller.Name,
	}
	sess := call.NewSession(f.CallID, f.StreamID, bc)
	b.sess = sess
	b.state = StateConnectingUpstream
	b.startedAt = b.now()
	b.unregister = b.registry.Register(f.CallID, call.Handle{Session: sess, Cancel: b.Close})
	b.mu.Unlock()

	b.metrics.RecordCallStart()
	b.logger.Info("call started",
		"callId", f.CallID,
		"streamId", f.StreamID,
		"business", f.BusinessName,
		"category", f.Category)

	// Dialing happens off the read loop so audio arriving in the
	// meantime is buffered rather than blocking the socket.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.connectUpstream(sess)
	}()
}

func (b *Bridge) connectUpstream(sess *call.Session) {
	dialCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()

	up, err := b.dial(dialCtx, b.cfg.Upstream)
	if err != nil {
		b.logger.Error("upstream connect failed", "callId", sess.CallID, "error", err)
		b.setStatus(StatusConnectFailed)
		b.Close()
		return
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		_ = up.Close()
		return
	}
	b.up = up
	b.state = StateBuffering
	b.mu.Unlock()

	if err := up.ConfigureSession(prompt.BuildInstructions(sess.Context)); err != nil {
		b.logger.Error("upstream session configuration failed", "callId", sess.CallID, "error", err)
		b.setStatus(StatusConnectFailed)
		b.Close()
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.upstreamLoop(sess, up)
	}()
}

// handleAudio forwards one inbound chunk, buffering it while the
// upstream session is not yet confirmed. Chunks arriving before the
// start frame have no call to attach to and are dropped.
func (b *Bridge) handleAudio(f protocol.MediaAudio) {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()

	if sess == nil {
		b.metrics.RecordDroppedFrame("media")
		b.logger.Debug("dropping audio before start frame")
		return
	}

	mulaw, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		b.metrics.RecordDroppedFrame("media")
		b.logger.Warn("dropping media frame with invalid base64 payload", "callId", sess.CallID)
		return
	}

	if sess.BufferAudio(mulaw) {
		return
	}
	// The connection is read only after the session declines to buffer,
	// so a ready transition concurrent with this frame still finds it.
	b.mu.Lock()
	up := b.up
	b.mu.Unlock()
	if up == nil {
		// Ready without a connection only happens mid-teardown.
		return
	}
	if err := b.forwardInbound(up, mulaw); err != nil {
		b.logger.Warn("forwarding inbound audio failed", "callId", sess.CallID, "error", err)
		b.Close()
	}
}

func (b *Bridge) forwardInbound(up UpstreamConn, mulaw []byte) error {
	pcm := audio.InboundPCM(mulaw)
	if err := up.AppendAudio(base64.StdEncoding.EncodeToString(pcm)); err != nil {
		return err
	}
	b.metrics.RecordAudio("inbound", len(mulaw))
	return nil
}

// upstreamLoop consumes AI endpoint events until the connection drops.
func (b *Bridge) upstreamLoop(sess *call.Session, up UpstreamConn) {
	defer b.Close()

	for {
		evt, err := up.ReadEvent()
		if err != nil {
			select {
			case <-b.ctx.Done():
			default:
				if _, done := sess.Termination(); done {
					b.setStatus(StatusCompleted)
				}
				b.logger.Debug("upstream read ended", "callId", sess.CallID, "error", err)
			}
			return
		}

		switch e := evt.(type) {
		case protocol.SessionCreated:
			b.logger.Debug("upstream session created", "callId", sess.CallID)
		case protocol.SessionUpdated:
			if err := b.flushBuffered(sess, up); err != nil {
				b.logger.Warn("flushing buffered audio failed", "callId", sess.CallID, "error", err)
				return
			}
		case protocol.AudioDelta:
			if err := b.relayOutbound(sess, e.Delta); err != nil {
				b.logger.Warn("relaying outbound audio failed", "callId", sess.CallID, "error", err)
				return
			}
		case protocol.TranscriptDone:
			b.logger.Debug("assistant said", "callId", sess.CallID, "transcript", e.Transcript)
		case protocol.InputTranscriptionCompleted:
			b.logger.Debug("callee said", "callId", sess.CallID, "transcript", e.Transcript)
		case protocol.TranscriptDelta:
			// Partial transcripts are too chatty even for debug logs.
		case protocol.FunctionCallDone:
			b.handleToolCall(sess, up, e)
		case protocol.UpstreamError:
			b.metrics.RecordUpstreamError()
			b.logger.Warn("upstream error event", "callId", sess.CallID, "code", e.Code, "message", e.Message)
		case protocol.RealtimeUnknown:
			b.logger.Debug("ignoring unhandled upstream event", "type", e.Type)
		}
	}
}

// flushBuffered drains the pre-ready audio in arrival order and flips
// the call to streaming. Chunks arriving during the flush keep
// buffering until it finishes, so ordering is preserved.
func (b *Bridge) flushBuffered(sess *call.Session, up UpstreamConn) error {
	err := sess.MarkReady(func(pending [][]byte) error {
		for _, chunk := range pending {
			if err := b.forwardInbound(up, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.state == StateBuffering {
		b.state = StateStreaming
	}
	b.mu.Unlock()
	b.logger.Info("upstream session ready", "callId", sess.CallID)
	return nil
}

// relayOutbound transcodes one synthesized PCM chunk to µ-law and
// writes it back on the telephony socket, echoing the stream id.
func (b *Bridge) relayOutbound(sess *call.Session, deltaB64 string) error {
	pcm, err := base64.StdEncoding.DecodeString(deltaB64)
	if err != nil {
		b.metrics.RecordDroppedFrame("upstream")
		b.logger.Warn("dropping audio delta with invalid base64", "callId", sess.CallID)
		return nil
	}

	mulaw := audio.OutboundULaw(pcm)
	frame := protocol.NewOutboundMedia(sess.StreamID, base64.StdEncoding.EncodeToString(mulaw))
	if err := b.writeJSON(frame); err != nil {
		return err
	}
	b.metrics.RecordAudio("outbound", len(mulaw))
	return nil
}

func (b *Bridge) handleToolCall(sess *call.Session, up UpstreamConn, e protocol.FunctionCallDone) {
	args := decodeToolArgs(e.Arguments)
	b.metrics.RecordToolCall(e.Name)

	switch e.Name {
	case upstream.ToolExtractQuote:
		sess.RecordQuote(call.Quote{
			Price:    argFloat(args, "price"),
			Item:     argString(args, "item"),
			WaitTime: argString(args, "waitTime"),
			Notes:    argString(args, "notes"),
		})
		b.logger.Info("quote extracted", "callId", sess.CallID, "price", argFloat(args, "price"), "item", argString(args, "item"))
	case upstream.ToolScheduleAppointment:
		sess.RecordAppointment(call.Appointment{
			Date:               argString(args, "date"),
			Service:            argString(args, "service"),
			Time:               argString(args, "time"),
			ConfirmationNumber: argString(args, "confirmationNumber"),
		})
		b.logger.Info("appointment extracted", "callId", sess.CallID, "date", argString(args, "date"), "service", argString(args, "service"))
	case upstream.ToolEndCall:
		// Advisory only. The model wraps up and the far end hangs up;
		// teardown stays transport driven.
		sess.RecordTermination(call.Termination{
			Reason:  argString(args, "reason"),
			Success: argBool(args, "success"),
			Summary: argString(args, "summary"),
		})
		b.logger.Info("model requested call end", "callId", sess.CallID, "reason", argString(args, "reason"), "success", argBool(args, "success"))
	default:
		b.logger.Warn("unknown tool call", "callId", sess.CallID, "tool", e.Name)
	}

	// Every call gets acknowledged, known or not; without the ack the
	// model stalls waiting for the function output.
	if err := up.AckToolCall(e.CallID); err != nil {
		b.logger.Warn("tool call ack failed", "callId", sess.CallID, "tool", e.Name, "error", err)
	}
}

func (b *Bridge) writeJSON(v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.cfg.WriteTimeout > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	}
	return b.conn.WriteJSON(v)
}

func (b *Bridge) setStatus(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.status = status
	}
}

// Close tears down both legs exactly once. Safe to call from any
// goroutine, including the registry's cancel path.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		sess := b.sess
		up := b.up
		unregister := b.unregister
		startedAt := b.startedAt
		status := b.status
		b.state = StateClosed
		b.up = nil
		b.mu.Unlock()

		if up != nil {
			_ = up.Close()
		}
		b.writeMu.Lock()
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = b.conn.Close()
		b.writeMu.Unlock()

		if unregister != nil {
			unregister()
		}
		if sess != nil {
			b.metrics.RecordCallEnd(status, b.now().Sub(startedAt))
			b.logger.Info("call closed", "callId", sess.CallID, "status", status)
		}
	})
}

func (b *Bridge) shutdown() {
	b.Close()
	b.wg.Wait()
}

// decodeToolArgs parses tool arguments leniently: malformed JSON
// degrades to an empty argument set instead of failing the call.
func decodeToolArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// argFloat accepts numbers or numeric strings, tolerating a leading
// currency sign the model sometimes emits.
func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case string:
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	}
	return 0
}

func argBool(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}
