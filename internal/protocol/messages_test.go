package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventRun, "abc123", RunPayload{Language: "python"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Event != EventRun || decoded.TaskID != "abc123" {
		t.Errorf("decoded envelope = %+v", decoded)
	}

	var p RunPayload
	if err := decoded.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Language != "python" {
		t.Errorf("language = %q, want python", p.Language)
	}
}

func TestEnvelopeNoPayload(t *testing.T) {
	env, err := NewEnvelope(EventKill, "abc123", nil)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	var p StdinPayload
	if err := decoded.Decode(&p); err == nil {
		t.Error("Decode on an empty payload should fail")
	}
}
