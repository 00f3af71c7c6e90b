// Package upstream manages the realtime connection to the speech-to-speech
// AI endpoint: one outbound websocket per call, configured once, then
// written to by both of the call's goroutines.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicebridge/pkg/bridge/protocol"
)

// ConnectError reports a failure to establish or authenticate the
// upstream connection. Fatal to the call it belongs to, never to others.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream connect: %s", e.Reason)
	}
	return fmt.Sprintf("upstream connect: %s: %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

type Config struct {
	APIKey           string
	URL              string
	Voice            string
	Temperature      float64
	HandshakeTimeout time.Duration
}

// Conn is one live upstream session. Writes are serialized internally;
// both the telephony loop and the upstream read loop write to it.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	voice   string
	temp    float64
}

// Connect dials the realtime endpoint with the bearer credential. The
// handshake is bounded by cfg.HandshakeTimeout (10s default); on timeout
// or rejection any partially-open connection is closed before the error
// is returned. There is no retry: a telephony call is time-bounded and a
// reconnect would exceed acceptable caller-facing latency.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConnectError{Reason: "missing api key"}
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if ws != nil {
			_ = ws.Close()
		}
		reason := "handshake failed"
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			reason = "credential rejected"
		}
		return nil, &ConnectError{Reason: reason, Err: err}
	}

	return &Conn{ws: ws, voice: cfg.Voice, temp: cfg.Temperature}, nil
}

// ConfigureSession sends the one-time session.update: modalities,
// instructions, voice, audio formats, server VAD turn detection,
// input transcription, and the tool declarations. Readiness is signaled
// asynchronously by the endpoint; callers observe it via ReadEvent.
func (c *Conn) ConfigureSession(instructions string) error {
	update := protocol.SessionUpdate{
		Type: "session.update",
		Session: protocol.SessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      instructions,
			Voice:             c.voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			InputAudioTranscription: &protocol.Transcription{
				Model: "whisper-1",
			},
			TurnDetection: &protocol.TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 500,
			},
			Tools:       ToolDeclarations(),
			ToolChoice:  "auto",
			Temperature: c.temp,
		},
	}
	return c.writeJSON(update)
}

// AppendAudio streams one base64 linear-PCM chunk into the input buffer.
func (c *Conn) AppendAudio(audioB64 string) error {
	return c.writeJSON(protocol.AudioAppend{Type: "input_audio_buffer.append", Audio: audioB64})
}

// AckToolCall returns a generic success result for a tool call and asks
// the endpoint to continue generating. Skipping either message stalls
// the conversation; the endpoint will not proceed without them.
func (c *Conn) AckToolCall(callID string) error {
	output, err := json.Marshal(map[string]string{"status": "success"})
	if err != nil {
		return fmt.Errorf("marshal tool output: %w", err)
	}
	item := protocol.ItemCreate{
		Type: "conversation.item.create",
		Item: protocol.FunctionCallItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(output),
		},
	}
	if err := c.writeJSON(item); err != nil {
		return err
	}
	return c.writeJSON(protocol.ResponseCreate{Type: "response.create"})
}

// ReadEvent blocks for the next server event and decodes it into the
// closed event union.
func (c *Conn) ReadEvent() (any, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.DecodeRealtimeEvent(data)
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
