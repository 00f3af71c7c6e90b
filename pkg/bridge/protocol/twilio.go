// Package protocol decodes both wire protocols the relay speaks: the
// telephony media-stream frames on the inbound leg and the realtime AI
// events on the upstream leg. Each decoder is a closed union over an
// envelope type field; unrecognized frames decode to an Unknown value the
// caller logs and ignores instead of silently dropping.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Message: message, Param: param}
}

// CallerProfile is the serialized caller identity carried inside the
// start frame's custom parameters.
type CallerProfile struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// MediaStart carries the call identity and business parameters for a new
// media stream.
type MediaStart struct {
	StreamID        string
	CallID          string
	AccountID       string
	BusinessName    string
	TaskDescription string
	Category        string
	Caller          CallerProfile
}

// MediaAudio is one inbound chunk of base64 µ-law audio.
type MediaAudio struct {
	StreamID string
	Payload  string
}

// MediaConnected is the transport-level greeting before start.
type MediaConnected struct {
	Protocol string
	Version  string
}

// MediaStop ends the stream cleanly.
type MediaStop struct {
	StreamID string
	CallID   string
}

// MediaUnknown is any frame with an event the relay does not handle.
type MediaUnknown struct {
	Event string
}

type mediaEnvelope struct {
	Event     string `json:"event"`
	Protocol  string `json:"protocol,omitempty"`
	Version   string `json:"version,omitempty"`
	StreamSid string `json:"streamSid,omitempty"`
	Start     *struct {
		AccountSid       string            `json:"accountSid"`
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop *struct {
		CallSid string `json:"callSid"`
	} `json:"stop,omitempty"`
}

// DecodeMediaFrame parses one inbound telephony frame.
func DecodeMediaFrame(data []byte) (any, error) {
	var env mediaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badFrame("invalid json frame", "")
	}

	switch strings.TrimSpace(env.Event) {
	case "":
		return nil, badFrame("missing event", "event")
	case "connected":
		return MediaConnected{Protocol: env.Protocol, Version: env.Version}, nil
	case "start":
		if env.Start == nil {
			return nil, badFrame("start frame missing payload", "start")
		}
		if strings.TrimSpace(env.Start.CallSid) == "" {
			return nil, badFrame("start.callSid is required", "start.callSid")
		}
		streamID := env.Start.StreamSid
		if streamID == "" {
			streamID = env.StreamSid
		}
		if strings.TrimSpace(streamID) == "" {
			return nil, badFrame("start.streamSid is required", "start.streamSid")
		}

		params := env.Start.CustomParameters
		msg := MediaStart{
			StreamID:        streamID,
			CallID:          env.Start.CallSid,
			AccountID:       env.Start.AccountSid,
			BusinessName:    params["businessName"],
			TaskDescription: params["taskDescription"],
			Category:        params["category"],
		}
		// Malformed caller profiles degrade to an empty identity; the
		// prompt builder substitutes placeholders.
		if raw := params["callerProfile"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &msg.Caller)
		}
		return msg, nil
	case "media":
		if env.Media == nil || strings.TrimSpace(env.Media.Payload) == "" {
			return nil, badFrame("media frame missing payload", "media.payload")
		}
		return MediaAudio{StreamID: env.StreamSid, Payload: env.Media.Payload}, nil
	case "stop":
		msg := MediaStop{StreamID: env.StreamSid}
		if env.Stop != nil {
			msg.CallID = env.Stop.CallSid
		}
		return msg, nil
	default:
		return MediaUnknown{Event: env.Event}, nil
	}
}

// OutboundMedia is the frame sent back on the telephony connection; the
// stream identifier must echo the one supplied at start so the telephony
// system routes it to the correct call leg.
type OutboundMedia struct {
	Event     string               `json:"event"`
	StreamSid string               `json:"streamSid"`
	Media     OutboundMediaPayload `json:"media"`
}

type OutboundMediaPayload struct {
	Payload string `json:"payload"`
}

// NewOutboundMedia builds a media frame carrying base64 µ-law audio.
func NewOutboundMedia(streamID, payloadB64 string) OutboundMedia {
	return OutboundMedia{
		Event:     "media",
		StreamSid: streamID,
		Media:     OutboundMediaPayload{Payload: payloadB64},
	}
}
