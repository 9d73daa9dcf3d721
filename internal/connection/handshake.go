package connection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// linkEnvelope is sent immediately after a transport connects.
type linkEnvelope struct {
	Action string `json:"action"`
	Token  string `json:"token"`
	UUID   string `json:"uuid"`
}

// subscribeEnvelope is sent once a connection id is known and a channel
// has been requested.
type subscribeEnvelope struct {
	Action       string `json:"action"`
	Channel      string `json:"channel"`
	ConnectionID string `json:"connection_id"`
	Token        string `json:"token"`
}

// handshake tracks the application-level session: the learned
// connection id (reset on every epoch) and the single pending channel
// slot. The pending channel is instance-owned and survives reconnects
// so each new handshake resubscribes it.
type handshake struct {
	identity SessionIdentity
	logger   *slog.Logger

	mu             sync.Mutex
	connectionID   string
	pendingChannel string
	ready          chan struct{} // closed once per epoch on handshake ack
}

func newHandshake(identity SessionIdentity, logger *slog.Logger) *handshake {
	return &handshake{
		identity: identity,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// reset clears the session id ahead of a new transport epoch. The
// pending channel is kept.
func (h *handshake) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectionID = ""
	h.ready = make(chan struct{})
}

// connectionIDValue returns the learned connection id, or "" before the
// handshake completes.
func (h *handshake) connectionIDValue() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectionID
}

// setPending records the desired channel and returns the connection id
// known at that instant, in one critical section. A later request
// overwrites an earlier one; there is a single slot. Exactly one side
// owns the subscribe enqueue: when the returned id is empty, inspect
// sends it on handshake completion; otherwise the caller sends it
// directly.
func (h *handshake) setPending(channel string) (connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingChannel = channel
	return h.connectionID
}

// linkPayload builds the handshake envelope.
func (h *handshake) linkPayload() (OutboundEnvelope, error) {
	data, err := json.Marshal(linkEnvelope{
		Action: "link",
		Token:  h.identity.Token,
		UUID:   h.identity.ClientUUID,
	})
	if err != nil {
		return OutboundEnvelope{}, fmt.Errorf("marshal link envelope: %w", err)
	}
	return OutboundEnvelope{Kind: KindText, Payload: data}, nil
}

// subscribePayload builds a subscribe envelope for the given channel.
func (h *handshake) subscribePayload(channel, connectionID string) (OutboundEnvelope, error) {
	data, err := json.Marshal(subscribeEnvelope{
		Action:       "subscribe",
		Channel:      channel,
		ConnectionID: connectionID,
		Token:        h.identity.Token,
	})
	if err != nil {
		return OutboundEnvelope{}, fmt.Errorf("marshal subscribe envelope: %w", err)
	}
	return OutboundEnvelope{Kind: KindText, Payload: data}, nil
}

// inspect classifies one inbound message. Detection is structural: the
// message is the handshake acknowledgement iff its connection_id field
// parses to a non-empty string; anything else falls through to the
// message stream unclassified. On the first match per epoch it stores
// the id, fires the ready signal, and returns a subscribe envelope when
// a channel request is pending.
func (h *handshake) inspect(msg ResponseMessage) *OutboundEnvelope {
	if msg.Kind != KindText {
		return nil
	}
	// Cheap prefilter before a full parse.
	if !strings.Contains(msg.Text, "connection_id") {
		return nil
	}
	var resp HandshakeResponse
	if err := json.Unmarshal([]byte(msg.Text), &resp); err != nil || resp.ConnectionID == "" {
		return nil
	}

	h.mu.Lock()
	if h.connectionID != "" {
		// Already linked this epoch; not a handshake message.
		h.mu.Unlock()
		return nil
	}
	h.connectionID = resp.ConnectionID
	pending := h.pendingChannel
	ready := h.ready
	h.mu.Unlock()

	close(ready)
	h.logger.Info("handshake complete", "connection_id", resp.ConnectionID)

	if pending == "" {
		return nil
	}
	env, err := h.subscribePayload(pending, resp.ConnectionID)
	if err != nil {
		h.logger.Warn("failed to build subscribe envelope", "channel", pending, "error", err)
		return nil
	}
	return &env
}

// readySignal returns the channel closed when the current epoch's
// handshake completes.
func (h *handshake) readySignal() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}
