package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// epoch is the lifetime of one physical transport, from acquisition to
// replacement or termination. Loops belonging to an epoch are keyed to
// its context so canceling the epoch stops exactly those loops.
type epoch struct {
	id        uint64
	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc

	// lostOnce dedupes the Lost disconnection event: the read loop and a
	// drain loop can both fail before either's reconnect cancels ctx.
	lostOnce sync.Once
}

// Manager orchestrates the relay session: it owns the active transport,
// runs the read loop, the two send-drain loops and the last-chance
// timer, and guarantees at most one reconnect attempt at a time.
type Manager struct {
	cfg      ClientConfig
	factory  Factory
	logger   *slog.Logger
	identity SessionIdentity

	messages       *Feed[ResponseMessage]
	reconnections  *Feed[ReconnectionInfo]
	disconnections *Feed[*DisconnectionInfo]

	textQueue   *sendQueue
	binaryQueue *sendQueue
	hs          *handshake

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// writeMu serializes physical writes across both drain loops; the
	// transport permits only one in-flight write.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	epoch        *epoch
	epochSeq     uint64
	reconnecting bool

	activityMu   sync.Mutex
	lastReceived time.Time

	wg sync.WaitGroup
}

// NewManager creates a relay client. A nil factory selects the default
// websocket dialer; a nil logger selects slog.Default(). The client
// UUID is generated once per Manager unless supplied in cfg.
func NewManager(cfg ClientConfig, factory Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.ClientUUID == "" {
		cfg.ClientUUID = uuid.NewString()
	}
	if factory == nil {
		factory = NewDialerFactory(cfg.URL, cfg.HandshakeTimeout)
	}

	identity := SessionIdentity{Token: cfg.Token, ClientUUID: cfg.ClientUUID}
	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:            cfg,
		factory:        factory,
		logger:         logger.With("uuid", cfg.ClientUUID),
		identity:       identity,
		messages:       NewFeed[ResponseMessage](),
		reconnections:  NewFeed[ReconnectionInfo](),
		disconnections: NewFeed[*DisconnectionInfo](),
		textQueue:      newSendQueue(KindText),
		binaryQueue:    newSendQueue(KindBinary),
		hs:             newHandshake(identity, logger),
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
	}
}

// Messages is the stream of inbound messages.
func (m *Manager) Messages() *Feed[ResponseMessage] { return m.messages }

// Reconnections fires once per successful (re)connection.
func (m *Manager) Reconnections() *Feed[ReconnectionInfo] { return m.reconnections }

// Disconnections fires once per disconnection. Listeners may set the
// cancel flags on the delivered info to veto default behavior.
func (m *Manager) Disconnections() *Feed[*DisconnectionInfo] { return m.disconnections }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the session identifier learned from the last
// handshake, or "" when no handshake has completed on the current
// transport.
func (m *Manager) ConnectionID() string {
	return m.hs.connectionIDValue()
}

// Start connects and begins the session. Connect errors are swallowed
// and surfaced on the Disconnections stream; a second Start while
// already started is a logged no-op.
func (m *Manager) Start(ctx context.Context) error {
	return m.start(ctx, false)
}

// StartOrFail is Start with connect errors propagated to the caller.
func (m *Manager) StartOrFail(ctx context.Context) error {
	return m.start(ctx, true)
}

func (m *Manager) start(ctx context.Context, failFast bool) error {
	m.mu.Lock()
	switch m.state {
	case StateDisposed:
		m.mu.Unlock()
		return ErrDisposed
	case StateNotStarted, StateStopped:
		m.state = StateStarting
		m.mu.Unlock()
	default:
		st := m.state
		m.mu.Unlock()
		m.logger.Debug("start ignored", "state", st)
		return nil
	}

	err := m.connect(ctx, ReconnectInitial)
	if err == nil {
		return nil
	}

	m.logger.Warn("initial connect failed", "error", err)
	info := &DisconnectionInfo{Reason: DisconnectError, Err: err}
	m.disconnections.Publish(info)

	if failFast {
		m.setState(StateStopped)
		return err
	}
	if info.CancelReconnection || m.cfg.ErrorBackoff <= 0 {
		m.setState(StateStopped)
		return nil
	}

	// Keep retrying in the background with the configured backoff.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.waitBackoff(m.rootCtx)
		m.establish(m.rootCtx, ReconnectError)
	}()
	return nil
}

// Stop closes the transport gracefully. No-op if not running; close
// errors are logged and swallowed, and the manager always ends Stopped.
func (m *Manager) Stop(code int, reason string) error {
	return m.stop(code, reason, false)
}

// StopOrFail is Stop with close errors propagated; the manager is
// marked Stopped regardless.
func (m *Manager) StopOrFail(code int, reason string) error {
	return m.stop(code, reason, true)
}

func (m *Manager) stop(code int, reason string, failFast bool) error {
	m.mu.Lock()
	switch m.state {
	case StateDisposed:
		m.mu.Unlock()
		return ErrDisposed
	case StateStarting, StateRunning, StateReconnecting:
		m.state = StateStopping
	default:
		st := m.state
		m.mu.Unlock()
		m.logger.Debug("stop ignored", "state", st)
		return nil
	}
	ep := m.epoch
	m.epoch = nil
	m.mu.Unlock()

	var closeErr error
	if ep != nil {
		data := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(m.cfg.WriteTimeout)
		closeErr = ep.transport.WriteControl(websocket.CloseMessage, data, deadline)
		ep.cancel()
		if cerr := ep.transport.Close(); closeErr == nil {
			closeErr = cerr
		}
	}
	m.hs.reset()

	m.disconnections.Publish(&DisconnectionInfo{Reason: DisconnectByUser, Err: closeErr})
	m.setState(StateStopped)
	m.logger.Info("stopped", "code", code, "reason", reason)

	if closeErr != nil {
		m.logger.Warn("graceful close failed", "error", closeErr)
		if failFast {
			return closeErr
		}
	}
	return nil
}

// Dispose is the terminal teardown: it cancels every loop and timer,
// aborts the transport, completes the queues and all three streams, and
// emits a final Exit disconnection. Idempotent. After Dispose every
// lifecycle method fails with ErrDisposed.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	m.state = StateDisposed
	ep := m.epoch
	m.epoch = nil
	m.mu.Unlock()

	m.rootCancel()
	m.textQueue.close()
	m.binaryQueue.close()
	if ep != nil {
		ep.cancel()
		ep.transport.Close()
	}
	m.hs.reset()

	m.disconnections.Publish(&DisconnectionInfo{Reason: DisconnectExit})
	m.messages.Complete()
	m.reconnections.Complete()
	m.disconnections.Complete()
	m.logger.Info("client disposed")
}

// SubscribeToChannel records the desired channel and sends a subscribe
// envelope once a connection id exists. Before the handshake completes
// the call waits (event-based, bounded by SubscribeTimeout) for the id;
// the handshake path then enqueues the subscribe exactly once.
func (m *Manager) SubscribeToChannel(ctx context.Context, channel string) error {
	if m.State() == StateDisposed {
		return ErrDisposed
	}

	// Recording the channel and reading the id happen atomically; a
	// handshake ack landing in between would otherwise make both the
	// inspect path and this one enqueue a subscribe.
	if id := m.hs.setPending(channel); id != "" {
		env, err := m.hs.subscribePayload(channel, id)
		if err != nil {
			return err
		}
		return m.textQueue.enqueue(env)
	}

	// The handshake acknowledgement enqueues the pending subscribe;
	// wait here only for confirmation that the id arrived.
	timer := time.NewTimer(m.cfg.SubscribeTimeout)
	defer timer.Stop()
	select {
	case <-m.hs.readySignal():
		return nil
	case <-timer.C:
		return ErrSubscribeTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.rootCtx.Done():
		return ErrDisposed
	}
}

// Send enqueues a payload on the queue matching its kind. It never
// blocks on transport I/O.
func (m *Manager) Send(env OutboundEnvelope) error {
	if m.State() == StateDisposed {
		return ErrDisposed
	}
	switch env.Kind {
	case KindText:
		return m.textQueue.enqueue(env)
	case KindBinary:
		return m.binaryQueue.enqueue(env)
	default:
		return fmt.Errorf("unknown message kind %d", env.Kind)
	}
}

// SendText enqueues a text payload.
func (m *Manager) SendText(text string) error {
	return m.Send(OutboundEnvelope{Kind: KindText, Payload: []byte(text)})
}

// SendBinary enqueues a binary payload.
func (m *Manager) SendBinary(data []byte) error {
	return m.Send(OutboundEnvelope{Kind: KindBinary, Payload: data})
}

// Reconnect forces a new transport epoch with cause Manual.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	ep := m.epoch
	m.mu.Unlock()
	if ep == nil {
		return ErrNotConnected
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnect(ep, ReconnectManual, nil)
	}()
	return nil
}

// connect acquires a fresh transport, installs a new epoch, starts its
// loops, queues the handshake envelope ahead of pending traffic, and
// emits the reconnection event.
func (m *Manager) connect(ctx context.Context, cause ReconnectReason) error {
	t, err := m.factory.Connect(ctx, m.identity)
	if err != nil {
		return err
	}

	m.hs.reset()

	m.mu.Lock()
	if m.state == StateDisposed || m.state == StateStopping || m.state == StateStopped {
		st := m.state
		m.mu.Unlock()
		t.Close()
		if st == StateDisposed {
			return ErrDisposed
		}
		return ErrNotConnected
	}
	m.epochSeq++
	ep := &epoch{id: m.epochSeq, transport: t}
	ep.ctx, ep.cancel = context.WithCancel(m.rootCtx)
	m.epoch = ep
	m.state = StateRunning
	m.reconnecting = false
	m.mu.Unlock()

	// A fresh transport must not trip the last-chance timer immediately.
	m.markActivity()

	if env, lerr := m.hs.linkPayload(); lerr == nil {
		m.textQueue.pushFront(env)
	} else {
		m.logger.Error("failed to build link envelope", "error", lerr)
	}

	m.wg.Add(3)
	go m.readLoop(ep)
	go m.drainLoop(ep, m.textQueue)
	go m.drainLoop(ep, m.binaryQueue)
	if m.cfg.ReconnectTimeout > 0 {
		m.wg.Add(1)
		go m.healthLoop(ep)
	}

	m.reconnections.Publish(ReconnectionInfo{Reason: cause})
	m.logger.Info("connected", "cause", cause, "epoch", ep.id)
	return nil
}

// establish retries connect until it succeeds, a listener vetoes, the
// backoff is unset, or the manager is torn down.
func (m *Manager) establish(ctx context.Context, cause ReconnectReason) error {
	for {
		err := m.connect(ctx, cause)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDisposed) || errors.Is(err, ErrNotConnected) {
			return err
		}

		m.logger.Warn("connect failed", "cause", cause, "error", err)
		info := &DisconnectionInfo{Reason: DisconnectError, Err: err}
		m.disconnections.Publish(info)

		if info.CancelReconnection || m.cfg.ErrorBackoff <= 0 {
			m.setState(StateStopped)
			return err
		}

		cause = ReconnectError
		if werr := m.waitBackoff(ctx); werr != nil {
			m.setState(StateStopped)
			return werr
		}
	}
}

func (m *Manager) waitBackoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.ErrorBackoff):
		return nil
	}
}

// reconnect discards the failed epoch and repeats the acquisition
// sequence. Only one invocation proceeds at a time; concurrent callers
// observe the guard and return.
func (m *Manager) reconnect(ep *epoch, cause ReconnectReason, reason error) {
	m.mu.Lock()
	if m.shouldIgnoreReconnection(ep) {
		st := m.state
		m.mu.Unlock()
		m.logger.Debug("reconnect ignored", "cause", cause, "state", st)
		return
	}
	m.reconnecting = true
	m.state = StateReconnecting
	m.epoch = nil
	m.mu.Unlock()

	m.logger.Info("reconnecting", "cause", cause, "error", reason)

	// Tear down the old epoch; this also stops its health timer.
	ep.cancel()
	ep.transport.Close()
	m.hs.reset()

	if err := m.establish(m.rootCtx, cause); err != nil {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
		m.logger.Warn("reconnect abandoned", "error", err)
	}
}

// shouldIgnoreReconnection reports whether a reconnect request must be
// dropped: the manager is tearing down, a reconnect is already in
// flight, or the reporting epoch is stale. Callers hold m.mu.
func (m *Manager) shouldIgnoreReconnection(ep *epoch) bool {
	switch m.state {
	case StateDisposed, StateStopping, StateStopped:
		return true
	}
	if m.reconnecting {
		return true
	}
	if m.epoch == nil || ep == nil || m.epoch.id != ep.id {
		return true
	}
	return false
}

// readLoop runs the frame receiver for one epoch and routes its
// terminal condition into the reconnection controller.
func (m *Manager) readLoop(ep *epoch) {
	defer m.wg.Done()

	var closeInfo *DisconnectionInfo
	recv := &frameReceiver{
		transport:  ep.transport,
		bufferSize: m.cfg.ReadBufferSize,
		logger:     m.logger,
		onMessage: func(msg ResponseMessage) {
			if env := m.hs.inspect(msg); env != nil {
				if err := m.textQueue.enqueue(*env); err != nil {
					m.logger.Warn("failed to enqueue subscribe", "error", err)
				}
			}
			m.messages.Publish(msg)
		},
		onClose: func(code int, text string) bool {
			info := &DisconnectionInfo{Reason: DisconnectByServer}
			m.disconnections.Publish(info)
			closeInfo = info
			return info.CancelClosing
		},
		markActivity: m.markActivity,
	}

	err := recv.run(ep.ctx)

	// Epoch ended locally (stop, reconnect, or dispose).
	select {
	case <-ep.ctx.Done():
		return
	default:
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, errCloseVetoed):
		m.requestReconnect(ep, DisconnectByServer, err)
	case errors.Is(err, errRemoteClosed):
		if closeInfo != nil && closeInfo.CancelReconnection {
			m.haltEpoch(ep)
			return
		}
		m.requestReconnect(ep, DisconnectByServer, err)
	default:
		m.reportLost(ep, err)
	}
}

// drainLoop consumes one send queue for one epoch, serializing writes
// with the sibling loop. A write failure requeues the item and routes
// through the same lost handling as the read loop.
func (m *Manager) drainLoop(ep *epoch, q *sendQueue) {
	defer m.wg.Done()

	msgType := websocket.TextMessage
	if q.kind == KindBinary {
		msgType = websocket.BinaryMessage
	}

	for {
		env, ok := q.next(ep.ctx.Done())
		if !ok {
			return
		}

		m.writeMu.Lock()
		ep.transport.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		err := ep.transport.WriteMessage(msgType, env.Payload)
		m.writeMu.Unlock()

		if err != nil {
			q.pushFront(env)
			select {
			case <-ep.ctx.Done():
				return
			default:
			}
			m.logger.Warn("write failed", "kind", q.kind, "epoch", ep.id, "error", err)
			m.reportLost(ep, err)
			return
		}
	}
}

// healthLoop is the last-chance timer: while this epoch is running, a
// quiet period longer than ReconnectTimeout forces a Lost reconnect.
func (m *Manager) healthLoop(ep *epoch) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ep.ctx.Done():
			return
		case <-ticker.C:
			if m.State() != StateRunning {
				continue
			}
			quiet := time.Since(m.lastActivity())
			if quiet <= m.cfg.ReconnectTimeout {
				continue
			}
			m.logger.Warn("no inbound traffic within reconnect timeout",
				"quiet", quiet,
				"timeout", m.cfg.ReconnectTimeout,
			)
			m.requestReconnect(ep, DisconnectLost, nil)
			return
		}
	}
}

// reportLost publishes the Lost disconnection for an epoch at most once
// and routes the veto decision into halt or reconnect.
func (m *Manager) reportLost(ep *epoch, err error) {
	ep.lostOnce.Do(func() {
		info := &DisconnectionInfo{Reason: DisconnectLost, Err: err}
		m.disconnections.Publish(info)
		if info.CancelReconnection {
			m.haltEpoch(ep)
			return
		}
		m.requestReconnect(ep, DisconnectLost, err)
	})
}

func (m *Manager) requestReconnect(ep *epoch, from DisconnectReason, reason error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnect(ep, reconnectReasonFor(from), reason)
	}()
}

// haltEpoch tears down an epoch without reconnecting, used when a
// listener vetoes the reconnect.
func (m *Manager) haltEpoch(ep *epoch) {
	m.mu.Lock()
	if m.state == StateDisposed || m.epoch == nil || m.epoch.id != ep.id {
		m.mu.Unlock()
		return
	}
	m.epoch = nil
	m.state = StateStopped
	m.mu.Unlock()

	ep.cancel()
	ep.transport.Close()
	m.hs.reset()
	m.logger.Info("reconnect vetoed, connection halted", "epoch", ep.id)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state != StateDisposed {
		m.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) markActivity() {
	m.activityMu.Lock()
	m.lastReceived = time.Now()
	m.activityMu.Unlock()
}

func (m *Manager) lastActivity() time.Time {
	m.activityMu.Lock()
	defer m.activityMu.Unlock()
	return m.lastReceived
}
