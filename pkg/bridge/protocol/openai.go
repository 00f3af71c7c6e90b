package protocol

import (
	"encoding/json"
	"strings"
)

// Client→server realtime messages. Only the four the relay sends.

// SessionUpdate configures the realtime session once after connect.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type SessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	Tools                   []Tool         `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
}

type Transcription struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// Tool declares one function the model may call.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AudioAppend streams one base64 PCM chunk into the input buffer.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ItemCreate returns a tool result to the conversation.
type ItemCreate struct {
	Type string           `json:"type"`
	Item FunctionCallItem `json:"item"`
}

type FunctionCallItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ResponseCreate asks the model to continue generating.
type ResponseCreate struct {
	Type string `json:"type"`
}

// Server→client realtime events the relay consumes.

// SessionCreated is the endpoint's connect acknowledgment; configuration
// has not taken effect yet.
type SessionCreated struct{}

// SessionUpdated confirms the session configuration applied. The bridge
// flips to ready on this event.
type SessionUpdated struct{}

// AudioDelta is one base64 chunk of synthesized PCM speech.
type AudioDelta struct {
	Delta string
}

// TranscriptDelta is a partial transcript of the synthesized speech.
type TranscriptDelta struct {
	Delta string
}

// TranscriptDone is the full transcript of one response.
type TranscriptDone struct {
	Transcript string
}

// InputTranscriptionCompleted carries the server-side transcription of
// what the callee said.
type InputTranscriptionCompleted struct {
	Transcript string
}

// FunctionCallDone is a completed tool call; Arguments is raw JSON parsed
// leniently by the tool handler, and CallID must be echoed back.
type FunctionCallDone struct {
	Name      string
	Arguments string
	CallID    string
}

// UpstreamError is the endpoint's protocol-level error event. Non-fatal
// to the transports unless the connection itself closes.
type UpstreamError struct {
	Code    string
	Message string
}

// RealtimeUnknown is any server event the relay does not handle.
type RealtimeUnknown struct {
	Type string
}

type realtimeEnvelope struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeRealtimeEvent parses one server event from the AI endpoint.
func DecodeRealtimeEvent(data []byte) (any, error) {
	var env realtimeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badFrame("invalid json event", "")
	}

	switch strings.TrimSpace(env.Type) {
	case "":
		return nil, badFrame("missing type", "type")
	case "session.created":
		return SessionCreated{}, nil
	case "session.updated":
		return SessionUpdated{}, nil
	case "response.audio.delta":
		if env.Delta == "" {
			return nil, badFrame("audio delta missing payload", "delta")
		}
		return AudioDelta{Delta: env.Delta}, nil
	case "response.audio_transcript.delta":
		return TranscriptDelta{Delta: env.Delta}, nil
	case "response.audio_transcript.done":
		return TranscriptDone{Transcript: env.Transcript}, nil
	case "conversation.item.input_audio_transcription.completed":
		return InputTranscriptionCompleted{Transcript: env.Transcript}, nil
	case "response.function_call_arguments.done":
		if strings.TrimSpace(env.Name) == "" {
			return nil, badFrame("function call missing name", "name")
		}
		return FunctionCallDone{Name: env.Name, Arguments: env.Arguments, CallID: env.CallID}, nil
	case "error":
		evt := UpstreamError{}
		if env.Error != nil {
			evt.Code = env.Error.Code
			evt.Message = env.Error.Message
		}
		return evt, nil
	default:
		return RealtimeUnknown{Type: env.Type}, nil
	}
}
