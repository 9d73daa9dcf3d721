package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/gorilla/websocket"
)

// Receiver loop outcomes surfaced to the manager as sentinel errors.
var (
	errRemoteClosed = errors.New("connection closed by server")
	errCloseVetoed  = errors.New("remote close vetoed by listener")
)

// frameReceiver drives the receive side of one transport epoch. It
// reassembles fragmented frames into complete messages, classifies
// close frames, and hands decoded messages to the manager.
type frameReceiver struct {
	transport  Transport
	bufferSize int
	logger     *slog.Logger

	// onMessage is invoked for every decoded message, in receive order.
	onMessage func(ResponseMessage)

	// onClose is invoked when the server sends a close frame. It returns
	// true when the listener vetoed the close (CancelClosing).
	onClose func(code int, text string) bool

	// markActivity records the last-received timestamp for the
	// last-chance timer.
	markActivity func()
}

// run reads until the transport fails, the server closes, or ctx is
// canceled. It returns nil only on local cancellation; a remote close
// returns errRemoteClosed or errCloseVetoed, anything else is the
// underlying transport error.
func (r *frameReceiver) run(ctx context.Context) error {
	buf := make([]byte, r.bufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgType, reader, err := r.transport.NextReader()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				r.logger.Info("close frame received", "code", ce.Code, "text", ce.Text)
				if r.onClose(ce.Code, ce.Text) {
					return errCloseVetoed
				}
				return errRemoteClosed
			}
			return err
		}

		// Accumulate chunks until the transport signals end-of-message.
		var payload []byte
		for {
			n, rerr := reader.Read(buf)
			if n > 0 {
				payload = append(payload, buf[:n]...)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}

		r.markActivity()

		var msg ResponseMessage
		switch msgType {
		case websocket.TextMessage:
			msg = ResponseMessage{Kind: KindText, Text: string(payload)}
		case websocket.BinaryMessage:
			msg = ResponseMessage{Kind: KindBinary, Data: payload}
		default:
			r.logger.Debug("dropping frame of unexpected type", "type", msgType)
			continue
		}

		r.onMessage(msg)
	}
}
