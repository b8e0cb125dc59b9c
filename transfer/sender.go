package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// runSend drives the sender side once the receiver has advertised a port:
// dial, stream the file in fixed-size chunks, finish. The caller has
// already claimed the transfer into its connecting state. Any error is
// terminal for this transfer only; the user re-offers if they want a
// retry.
func (t *Transfer) runSend(addr string) {
	t.publish(EventConnecting, addr)

	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		t.fail(fmt.Sprintf("connect failed: %v", err), true)
		return
	}

	t.mu.Lock()
	if t.state != StateConnecting {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	if err := t.setState(StateTransferring); err != nil {
		return
	}

	file, err := os.Open(t.path)
	if err != nil {
		t.fail(fmt.Sprintf("open failed: %v", err), true)
		return
	}
	defer file.Close()

	if err := t.stream(conn, file, t.size); err != nil {
		t.fail(fmt.Sprintf("send failed: %v", err), true)
		return
	}

	t.complete()
}

// stream copies exactly size bytes chunk by chunk, checking for
// cancellation at every chunk boundary.
func (t *Transfer) stream(dst io.Writer, src io.Reader, size int64) error {
	remaining := size

	for remaining > 0 {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}

		written, err := io.CopyN(dst, src, n)
		if written > 0 {
			t.advance(written)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && remaining-written == 0 {
				break
			}
			return err
		}

		remaining -= written
	}

	return nil
}
