package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeMediaFrame_Start(t *testing.T) {
	raw := `{
		"event": "start",
		"streamSid": "MZ123",
		"start": {
			"accountSid": "AC1",
			"streamSid": "MZ123",
			"callSid": "CA123",
			"customParameters": {
				"businessName": "Tony's Pizza",
				"taskDescription": "order a large pepperoni pizza for pickup",
				"category": "food",
				"callerProfile": "{\"name\":\"Sam\",\"phone\":\"+15550001111\"}"
			}
		}
	}`
	decoded, err := DecodeMediaFrame([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeMediaFrame: %v", err)
	}
	start, ok := decoded.(MediaStart)
	if !ok {
		t.Fatalf("decoded %T, want MediaStart", decoded)
	}
	if start.CallID != "CA123" || start.StreamID != "MZ123" {
		t.Fatalf("identity=%q/%q, want CA123/MZ123", start.CallID, start.StreamID)
	}
	if start.BusinessName != "Tony's Pizza" {
		t.Fatalf("businessName=%q", start.BusinessName)
	}
	if start.TaskDescription != "order a large pepperoni pizza for pickup" {
		t.Fatalf("taskDescription=%q", start.TaskDescription)
	}
	if start.Caller.Name != "Sam" {
		t.Fatalf("caller=%+v, want name Sam", start.Caller)
	}
}

func TestDecodeMediaFrame_StartWithGarbledCallerProfile(t *testing.T) {
	raw := `{
		"event": "start",
		"start": {
			"streamSid": "MZ1",
			"callSid": "CA1",
			"customParameters": {"callerProfile": "{not json"}
		}
	}`
	decoded, err := DecodeMediaFrame([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeMediaFrame: %v", err)
	}
	start := decoded.(MediaStart)
	if start.Caller.Name != "" {
		t.Fatalf("caller=%+v, want empty profile", start.Caller)
	}
}

func TestDecodeMediaFrame_MediaAndStop(t *testing.T) {
	decoded, err := DecodeMediaFrame([]byte(`{"event":"media","streamSid":"MZ1","media":{"payload":"//8A"}}`))
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	media, ok := decoded.(MediaAudio)
	if !ok || media.Payload != "//8A" || media.StreamID != "MZ1" {
		t.Fatalf("media=%+v", decoded)
	}

	decoded, err = DecodeMediaFrame([]byte(`{"event":"stop","streamSid":"MZ1","stop":{"callSid":"CA1"}}`))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	stop, ok := decoded.(MediaStop)
	if !ok || stop.CallID != "CA1" {
		t.Fatalf("stop=%+v", decoded)
	}
}

func TestDecodeMediaFrame_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing event", `{"streamSid":"MZ1"}`},
		{"start without callSid", `{"event":"start","start":{"streamSid":"MZ1"}}`},
		{"start without streamSid", `{"event":"start","start":{"callSid":"CA1"}}`},
		{"media without payload", `{"event":"media","media":{}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeMediaFrame([]byte(tc.raw)); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}

func TestDecodeMediaFrame_UnknownEventIsNotAnError(t *testing.T) {
	decoded, err := DecodeMediaFrame([]byte(`{"event":"mark","streamSid":"MZ1"}`))
	if err != nil {
		t.Fatalf("unknown event: %v", err)
	}
	unknown, ok := decoded.(MediaUnknown)
	if !ok || unknown.Event != "mark" {
		t.Fatalf("decoded=%+v, want MediaUnknown{mark}", decoded)
	}
}

func TestNewOutboundMedia_EchoesStreamID(t *testing.T) {
	frame := NewOutboundMedia("MZ99", "AAAA")
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round["event"] != "media" || round["streamSid"] != "MZ99" {
		t.Fatalf("frame=%v", round)
	}
	media := round["media"].(map[string]any)
	if media["payload"] != "AAAA" {
		t.Fatalf("payload=%v", media["payload"])
	}
}
