package connection

import (
	"encoding/json"
	"testing"
)

func testHandshake() *handshake {
	return newHandshake(SessionIdentity{Token: "tok-1", ClientUUID: "uuid-1"}, testLogger())
}

func TestHandshake_LinkPayload(t *testing.T) {
	hs := testHandshake()

	env, err := hs.linkPayload()
	if err != nil {
		t.Fatalf("linkPayload: %v", err)
	}
	if env.Kind != KindText {
		t.Errorf("kind = %v, want text", env.Kind)
	}

	var decoded map[string]string
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal link envelope: %v", err)
	}
	if decoded["action"] != "link" || decoded["token"] != "tok-1" || decoded["uuid"] != "uuid-1" {
		t.Errorf("link envelope = %v", decoded)
	}
}

func TestHandshake_SubscribePayload(t *testing.T) {
	hs := testHandshake()

	env, err := hs.subscribePayload("orders", "conn-9")
	if err != nil {
		t.Fatalf("subscribePayload: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal subscribe envelope: %v", err)
	}
	want := map[string]string{
		"action":        "subscribe",
		"channel":       "orders",
		"connection_id": "conn-9",
		"token":         "tok-1",
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s = %q, want %q", k, decoded[k], v)
		}
	}
}

func TestHandshake_InspectDetectsResponse(t *testing.T) {
	hs := testHandshake()

	if env := hs.inspect(ResponseMessage{Kind: KindText, Text: `{"connection_id": "abc-123"}`}); env != nil {
		t.Error("no pending channel, expected nil envelope")
	}
	if got := hs.connectionIDValue(); got != "abc-123" {
		t.Errorf("connection id = %q, want abc-123", got)
	}

	select {
	case <-hs.readySignal():
	default:
		t.Error("ready signal not fired after handshake")
	}
}

func TestHandshake_InspectIgnoresUnrelatedPayloads(t *testing.T) {
	hs := testHandshake()

	cases := []ResponseMessage{
		{Kind: KindBinary, Data: []byte(`{"connection_id":"x"}`)},
		{Kind: KindText, Text: `{"event":"tick","price":42}`},
		{Kind: KindText, Text: `connection_id but not json`},
		{Kind: KindText, Text: `{"connection_id": ""}`},
		{Kind: KindText, Text: `{"connection_id": 17}`},
	}
	for _, msg := range cases {
		if env := hs.inspect(msg); env != nil {
			t.Errorf("inspect(%q) produced an envelope", msg.Text)
		}
	}
	if got := hs.connectionIDValue(); got != "" {
		t.Errorf("connection id = %q, want empty", got)
	}
}

// Whitespace variations in the response must not defeat detection.
func TestHandshake_InspectIsFormattingTolerant(t *testing.T) {
	variants := []string{
		`{"connection_id":"id-1"}`,
		"{\n \"connection_id\": \"id-1\"}",
		"{\n    \"connection_id\":\t\"id-1\",\n    \"extra\": true}",
	}
	for _, text := range variants {
		hs := testHandshake()
		hs.inspect(ResponseMessage{Kind: KindText, Text: text})
		if got := hs.connectionIDValue(); got != "id-1" {
			t.Errorf("inspect(%q): connection id = %q, want id-1", text, got)
		}
	}
}

func TestHandshake_PendingChannelSubscribedOnce(t *testing.T) {
	hs := testHandshake()

	// Two requests before the handshake share the single slot.
	hs.setPending("foo")
	hs.setPending("foo")

	env := hs.inspect(ResponseMessage{Kind: KindText, Text: `{"connection_id":"c1"}`})
	if env == nil {
		t.Fatal("expected subscribe envelope for pending channel")
	}

	var decoded map[string]string
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["channel"] != "foo" || decoded["connection_id"] != "c1" {
		t.Errorf("subscribe envelope = %v", decoded)
	}

	// A second handshake-shaped message in the same epoch is ordinary
	// traffic: no new subscribe, no id change.
	if env := hs.inspect(ResponseMessage{Kind: KindText, Text: `{"connection_id":"c2"}`}); env != nil {
		t.Error("second match produced an envelope")
	}
	if got := hs.connectionIDValue(); got != "c1" {
		t.Errorf("connection id = %q, want c1", got)
	}
}

func TestHandshake_ResetKeepsPendingChannel(t *testing.T) {
	hs := testHandshake()
	hs.setPending("foo")
	hs.inspect(ResponseMessage{Kind: KindText, Text: `{"connection_id":"c1"}`})

	hs.reset()
	if got := hs.connectionIDValue(); got != "" {
		t.Errorf("connection id after reset = %q, want empty", got)
	}

	// The next epoch's handshake resubscribes the kept channel.
	env := hs.inspect(ResponseMessage{Kind: KindText, Text: `{"connection_id":"c2"}`})
	if env == nil {
		t.Fatal("expected resubscribe after reset")
	}
	var decoded map[string]string
	json.Unmarshal(env.Payload, &decoded)
	if decoded["channel"] != "foo" || decoded["connection_id"] != "c2" {
		t.Errorf("resubscribe envelope = %v", decoded)
	}
}

// Round-trip: the identity sent in the link envelope comes back as the
// session identifier from a matching synthetic response.
func TestHandshake_RoundTrip(t *testing.T) {
	hs := testHandshake()

	env, err := hs.linkPayload()
	if err != nil {
		t.Fatalf("linkPayload: %v", err)
	}
	var link linkEnvelope
	if err := json.Unmarshal(env.Payload, &link); err != nil {
		t.Fatalf("unmarshal link: %v", err)
	}

	response, _ := json.Marshal(HandshakeResponse{ConnectionID: link.UUID})
	hs.inspect(ResponseMessage{Kind: KindText, Text: string(response)})

	if got := hs.connectionIDValue(); got != link.UUID {
		t.Errorf("round-trip id = %q, want %q", got, link.UUID)
	}
}
