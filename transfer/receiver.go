package transfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// accept binds the listening socket for an accepted offer and starts the
// receive goroutine. It returns the port to advertise in the
// SENDFILEACCEPT message.
func (t *Transfer) accept(destDir string) (int, error) {
	t.mu.Lock()
	if t.state != StateWaiting {
		t.mu.Unlock()
		return 0, ErrNotWaiting
	}
	t.mu.Unlock()

	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		return 0, fmt.Errorf("failed to bind transfer port: %w", err)
	}

	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()

	if err := t.setState(StateConnecting); err != nil {
		ln.Close()
		return 0, err
	}

	port := ln.Addr().(*net.TCPAddr).Port
	t.publish(EventConnecting, "")

	go t.runReceive(ln, destDir)

	return port, nil
}

func (t *Transfer) runReceive(ln net.Listener, destDir string) {
	defer ln.Close()

	if tcpLn, ok := ln.(*net.TCPListener); ok {
		tcpLn.SetDeadline(time.Now().Add(acceptTimeout))
	}

	conn, err := ln.Accept()
	if err != nil {
		t.fail(fmt.Sprintf("accept failed: %v", err), true)
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

	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.fail(fmt.Sprintf("failed to create destination directory: %v", err), true)
		return
	}

	destPath := uniquePath(destDir, t.key.Name)
	file, err := os.Create(destPath)
	if err != nil {
		t.fail(fmt.Sprintf("failed to create destination file: %v", err), true)
		return
	}

	t.mu.Lock()
	t.path = destPath
	t.mu.Unlock()

	if err := t.stream(file, conn, t.size); err != nil {
		file.Close()
		os.Remove(destPath)
		t.fail(fmt.Sprintf("receive failed: %v", err), true)
		return
	}

	if err := file.Close(); err != nil {
		t.fail(fmt.Sprintf("failed to close destination file: %v", err), true)
		return
	}

	t.complete()
}

// DestPath is where the received file ended up. Empty until the transfer
// reached its transferring state.
func (t *Transfer) DestPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.direction != DirectionReceive {
		return ""
	}
	return t.path
}

// uniquePath never overwrites an existing file; it counts up a numeric
// suffix until the name is free.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return path
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s.%d%s", base, i, ext))
		if _, err := os.Stat(path); err != nil {
			return path
		}
	}
}
