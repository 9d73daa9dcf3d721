package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrDisposed         = errors.New("client disposed")
	ErrNotConnected     = errors.New("not connected")
	ErrQueueClosed      = errors.New("send queue closed")
	ErrSubscribeTimeout = errors.New("timed out waiting for connection id")
)

// State is the lifecycle state of a Manager. Transitions are owned
// exclusively by the Manager; once Disposed no further transition occurs.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateReconnecting
	StateStopping
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateReconnecting:
		return "Reconnecting"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// DisconnectReason classifies why a connection ended.
type DisconnectReason int

const (
	DisconnectExit     DisconnectReason = iota // client disposed
	DisconnectByUser                           // manual stop
	DisconnectByServer                         // remote close frame
	DisconnectError                            // transport or connect failure
	DisconnectLost                             // read/write failure or health timeout
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectExit:
		return "Exit"
	case DisconnectByUser:
		return "ByUser"
	case DisconnectByServer:
		return "ByServer"
	case DisconnectError:
		return "Error"
	case DisconnectLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// ReconnectReason classifies why a (re)connection was made.
type ReconnectReason int

const (
	ReconnectInitial ReconnectReason = iota // first connect on Start
	ReconnectManual                         // user-requested reconnect
	ReconnectError                          // retry after a failed attempt
	ReconnectLost                           // connection loss or health timeout
)

func (r ReconnectReason) String() string {
	switch r {
	case ReconnectInitial:
		return "Initial"
	case ReconnectManual:
		return "Manual"
	case ReconnectError:
		return "Error"
	case ReconnectLost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// reconnectReasonFor maps a disconnect reason to its paired reconnect
// cause. The two enumerations must stay aligned through this function;
// types_test.go pins the pairs.
func reconnectReasonFor(r DisconnectReason) ReconnectReason {
	switch r {
	case DisconnectExit:
		return ReconnectInitial
	case DisconnectByUser:
		return ReconnectManual
	case DisconnectError:
		return ReconnectError
	default:
		// ByServer and Lost both recover as a lost connection.
		return ReconnectLost
	}
}

// MessageKind distinguishes text from binary payloads.
type MessageKind int

const (
	KindText MessageKind = iota + 1
	KindBinary
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ResponseMessage is one complete inbound message, reassembled from
// frames. Exactly one of Text or Data is set, per Kind.
type ResponseMessage struct {
	Kind MessageKind
	Text string
	Data []byte
}

// OutboundEnvelope is one serialized payload queued for sending.
type OutboundEnvelope struct {
	Kind    MessageKind
	Payload []byte
}

// ReconnectionInfo is emitted once per successful (re)connection.
type ReconnectionInfo struct {
	Reason ReconnectReason
}

// DisconnectionInfo is emitted once per disconnection. Listeners receive
// a pointer and may set the cancel flags to veto the default behavior:
// CancelReconnection suppresses the automatic reconnect, CancelClosing
// turns a remote close into a reconnect attempt.
type DisconnectionInfo struct {
	Reason             DisconnectReason
	Err                error
	CancelReconnection bool
	CancelClosing      bool
}

// HandshakeResponse is the inbound acknowledgement of the link envelope.
// Detection is structural: the message is the handshake response iff
// this field parses to a non-empty string.
type HandshakeResponse struct {
	ConnectionID string `json:"connection_id"`
}

// SessionIdentity is fixed for the lifetime of one Manager. A new
// identity requires constructing a new Manager.
type SessionIdentity struct {
	Token      string
	ClientUUID string
}

// ClientConfig configures a Manager.
type ClientConfig struct {
	URL              string        // relay address, e.g. wss://relay.example.com
	Token            string        // relay auth token
	ClientUUID       string        // generated when empty
	HandshakeTimeout time.Duration // transport-level dial handshake
	WriteTimeout     time.Duration // write deadline per frame
	ReadBufferSize   int           // chunk size for frame reassembly
	ReconnectTimeout time.Duration // max quiet time before a Lost reconnect; 0 disables
	ErrorBackoff     time.Duration // wait before retrying a failed connect; 0 gives up
	HealthInterval   time.Duration // last-chance timer tick
	SubscribeTimeout time.Duration // max wait for the connection id
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadBufferSize:   4096,
		ReconnectTimeout: 60 * time.Second,
		ErrorBackoff:     5 * time.Second,
		HealthInterval:   time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultClientConfig.
// ReconnectTimeout and ErrorBackoff are left untouched: zero means
// "disabled" and "give up" respectively, so a caller wanting the
// defaults for those starts from DefaultClientConfig instead.
func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = def.HealthInterval
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	return c
}
