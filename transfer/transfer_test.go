package transfer

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnvik/lanchat/logger"
	"github.com/arnvik/lanchat/protocol"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()

	log := logger.New()
	log.Init(filepath.Join(t.TempDir(), "log.txt"))

	return NewCollection(t.TempDir(), log)
}

func writeTestFile(t *testing.T, name string, size int) string {
	t.Helper()

	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("a_file.txt", 80800)
	b := Fingerprint("a_file.txt", 80800)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Fingerprint("b_file.txt", 80800))
	assert.NotEqual(t, a, Fingerprint("a_file.txt", 80801))
}

func TestOfferSendStartsWaiting(t *testing.T) {
	c := newTestCollection(t)
	path := writeTestFile(t, "offer.bin", 1024)

	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	assert.Equal(t, StateWaiting, tr.State())
	assert.Equal(t, DirectionSend, tr.Direction())
	assert.Equal(t, int64(1024), tr.Size())
	assert.Equal(t, 200, tr.Key().Code)
	assert.Equal(t, "offer.bin", tr.Key().Name)

	e := <-c.Events()
	assert.Equal(t, EventWaiting, e.Kind)
}

func TestOfferSendRejectsMissingFile(t *testing.T) {
	c := newTestCollection(t)

	_, err := c.OfferSend(200, "peer", filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)

	_, err = c.OfferSend(200, "peer", t.TempDir())
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestSendReceiveEndToEnd(t *testing.T) {
	senderSide := newTestCollection(t)
	receiverSide := newTestCollection(t)

	const size = 300 * 1024
	path := writeTestFile(t, "payload.bin", size)
	want, err := os.ReadFile(path)
	require.NoError(t, err)

	// Sender (code 100) offers to peer 200.
	sendTr, err := senderSide.OfferSend(200, "receiver", path)
	require.NoError(t, err)

	// Receiver correlates on the sender's code.
	offer := &protocol.FileOfferPayload{
		TargetCode: 200,
		Size:       size,
		Hash:       sendTr.Key().Hash,
		Name:       "payload.bin",
	}
	recvTr := receiverSide.HandleOffer(100, "sender", offer)
	assert.Equal(t, StateWaiting, recvTr.State())

	port, err := receiverSide.Accept(recvTr.Key())
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, recvTr.State())

	senderSide.HandleAccept(200, net.IPv4(127, 0, 0, 1), &protocol.FileAcceptPayload{
		TargetCode: 100,
		Port:       port,
		Hash:       sendTr.Key().Hash,
		Name:       "payload.bin",
	})

	require.Eventually(t, func() bool {
		return sendTr.State() == StateCompleted && recvTr.State() == StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(size), sendTr.Transferred())
	assert.Equal(t, int64(size), recvTr.Transferred())
	assert.Equal(t, 100, sendTr.Percent())

	got, err := os.ReadFile(recvTr.DestPath())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDuplicateOfferReturnsSameTransfer(t *testing.T) {
	c := newTestCollection(t)

	offer := &protocol.FileOfferPayload{TargetCode: 1, Size: 10, Hash: 42, Name: "f.txt"}
	first := c.HandleOffer(100, "sender", offer)
	second := c.HandleOffer(100, "sender", offer)

	assert.Same(t, first, second)
}

func TestSimultaneousOffersFromSameSenderStayDistinct(t *testing.T) {
	c := newTestCollection(t)

	a := c.HandleOffer(100, "sender", &protocol.FileOfferPayload{TargetCode: 1, Size: 10, Hash: 42, Name: "a.txt"})
	b := c.HandleOffer(100, "sender", &protocol.FileOfferPayload{TargetCode: 1, Size: 10, Hash: 42, Name: "b.txt"})

	assert.NotSame(t, a, b)
	assert.Len(t, c.Active(), 2)
}

func TestCancelWhileWaitingEmitsOneAbort(t *testing.T) {
	c := newTestCollection(t)
	aborts := 0
	c.SetAbortNotifier(func(key Key) { aborts++ })

	path := writeTestFile(t, "cancel.bin", 128)
	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(tr.Key()))
	assert.Equal(t, StateFailed, tr.State())
	assert.Equal(t, 1, aborts)

	// Terminal transitions are idempotent.
	tr.Cancel()
	tr.abortedByPeer()
	assert.Equal(t, 1, aborts)
	assert.Equal(t, StateFailed, tr.State())
}

func TestRejectNotifiesSender(t *testing.T) {
	c := newTestCollection(t)
	var aborted []Key
	c.SetAbortNotifier(func(key Key) { aborted = append(aborted, key) })

	offer := &protocol.FileOfferPayload{TargetCode: 1, Size: 10, Hash: 42, Name: "f.txt"}
	tr := c.HandleOffer(100, "sender", offer)

	require.NoError(t, c.Reject(tr.Key()))

	assert.Equal(t, StateFailed, tr.State())
	assert.Equal(t, []Key{tr.Key()}, aborted)
}

func TestPeerAbortFreesWaitingSender(t *testing.T) {
	c := newTestCollection(t)
	aborts := 0
	c.SetAbortNotifier(func(key Key) { aborts++ })

	path := writeTestFile(t, "aborted.bin", 128)
	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	c.HandleAbort(200, &protocol.FileAbortPayload{TargetCode: 100, Hash: tr.Key().Hash, Name: "aborted.bin"})

	assert.Equal(t, StateFailed, tr.State())
	// The peer already knows; no abort goes back.
	assert.Equal(t, 0, aborts)
	assert.Empty(t, c.Active())
}

func TestDuplicateAcceptDialsOnce(t *testing.T) {
	c := newTestCollection(t)

	const size = 64 * 1024
	path := writeTestFile(t, "dup.bin", size)
	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var conns atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns.Add(1)
			go func() {
				io.Copy(io.Discard, conn)
				conn.Close()
			}()
		}
	}()

	accept := &protocol.FileAcceptPayload{
		TargetCode: 100,
		Port:       ln.Addr().(*net.TCPAddr).Port,
		Hash:       tr.Key().Hash,
		Name:       "dup.bin",
	}

	// The first accept claims the transfer before its goroutine spawns,
	// so the replayed datagram finds it already past waiting.
	c.HandleAccept(200, net.IPv4(127, 0, 0, 1), accept)
	assert.NotEqual(t, StateWaiting, tr.State())
	c.HandleAccept(200, net.IPv4(127, 0, 0, 1), accept)

	require.Eventually(t, func() bool {
		return tr.State() == StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), conns.Load())
	assert.Equal(t, int64(size), tr.Transferred())

	// Completion releases the transfer context so no send goroutine can
	// stay blocked on a dead connection.
	assert.Error(t, tr.ctx.Err())
}

func TestCancelUnacceptedInboundOfferNotifiesSender(t *testing.T) {
	c := newTestCollection(t)
	var aborted []Key
	c.SetAbortNotifier(func(key Key) { aborted = append(aborted, key) })

	offer := &protocol.FileOfferPayload{TargetCode: 1, Size: 10, Hash: 42, Name: "f.txt"}
	tr := c.HandleOffer(100, "sender", offer)

	require.NoError(t, c.Cancel(tr.Key()))

	// The sender holds a waiting entry for the announced offer; exactly
	// one abort goes out to free it.
	assert.Equal(t, StateFailed, tr.State())
	assert.Equal(t, []Key{tr.Key()}, aborted)

	tr.Cancel()
	assert.Equal(t, []Key{tr.Key()}, aborted)
}

func TestHandleAcceptUnmatchedIsNoOp(t *testing.T) {
	c := newTestCollection(t)

	c.HandleAccept(200, net.IPv4(127, 0, 0, 1), &protocol.FileAcceptPayload{
		TargetCode: 100,
		Port:       1,
		Hash:       987,
		Name:       "ghost.txt",
	})

	assert.Empty(t, c.Active())
}

func TestAcceptRequiresWaitingReceive(t *testing.T) {
	c := newTestCollection(t)

	_, err := c.Accept(Key{Code: 1, Hash: 2, Name: "x"})
	assert.ErrorIs(t, err, ErrUnknownTransfer)

	path := writeTestFile(t, "send.bin", 16)
	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	_, err = c.Accept(tr.Key())
	assert.ErrorIs(t, err, ErrUnknownTransfer)
}

func TestSetStateRefusesToLeaveTerminal(t *testing.T) {
	c := newTestCollection(t)
	path := writeTestFile(t, "term.bin", 16)

	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	tr.Cancel()
	assert.ErrorIs(t, tr.setState(StateTransferring), ErrTerminal)
	assert.Equal(t, StateFailed, tr.State())
}

func TestPercentClamped(t *testing.T) {
	c := newTestCollection(t)
	path := writeTestFile(t, "pct.bin", 100)

	tr, err := c.OfferSend(200, "peer", path)
	require.NoError(t, err)

	assert.Equal(t, 0, tr.Percent())

	tr.transferred.Store(50)
	assert.Equal(t, 50, tr.Percent())

	tr.transferred.Store(1000)
	assert.Equal(t, 100, tr.Percent())
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := uniquePath(dir, "file.txt")
	assert.Equal(t, filepath.Join(dir, "file.txt"), first)

	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))
	second := uniquePath(dir, "file.txt")
	assert.Equal(t, filepath.Join(dir, "file.1.txt"), second)

	require.NoError(t, os.WriteFile(second, []byte("x"), 0644))
	third := uniquePath(dir, "file.txt")
	assert.Equal(t, filepath.Join(dir, "file.2.txt"), third)
}

func TestSpeedometerTrailingWindow(t *testing.T) {
	s := newSpeedometer()

	assert.Zero(t, s.bytesPerSecond())

	s.update(0)
	time.Sleep(20 * time.Millisecond)
	s.update(100 * 1024)

	speed := s.bytesPerSecond()
	assert.Positive(t, speed)
}
