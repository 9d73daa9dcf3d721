// Package connection implements the relay client core.
//
// The Manager:
//   - Maintains one logical session across physical reconnects
//   - Performs the application handshake to obtain a connection id
//   - Drains two ordered send queues (text, binary) onto one transport
//   - Watches inbound traffic with a last-chance timer
//   - Guarantees at most one reconnect attempt in flight
package connection
