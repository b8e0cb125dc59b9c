// Package transport owns the multicast control channel and the unicast
// fallback socket. It hands every successfully decoded datagram to the
// registered handlers in arrival order and accepts best-effort outbound
// sends. No delivery, ordering or deduplication guarantees are made here;
// the consumers are written to be idempotent.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/arnvik/lanchat/logger"
	"github.com/arnvik/lanchat/protocol"
)

const multicastTTL = 4

var ErrNotStarted = errors.New("transport not started")

// netInterfaces is swapped in tests to exercise enumeration failures.
var netInterfaces = net.Interfaces

// Handler receives every decoded message along with the address it came
// from. Handlers are invoked from the receive goroutines, one datagram at
// a time per socket.
type Handler func(msg *protocol.Message, from *net.UDPAddr)

type Service struct {
	groupAddr   string
	unicastPort int
	selfCode    int
	log         logger.Logger

	group   *net.UDPAddr
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn
	unicast *net.UDPConn

	mu       sync.RWMutex
	handlers []Handler

	wmu sync.Mutex
}

func New(groupAddr string, unicastPort, selfCode int, log logger.Logger) *Service {
	return &Service{
		groupAddr:   groupAddr,
		unicastPort: unicastPort,
		selfCode:    selfCode,
		log:         log,
	}
}

func (s *Service) RegisterHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = append(s.handlers, h)
}

// Start joins the multicast group on every eligible interface and opens
// the unicast fallback socket, then runs both receive loops until the
// context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	group, err := net.ResolveUDPAddr("udp4", s.groupAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve multicast group: %w", err)
	}
	s.group = group

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: group.Port})
	if err != nil {
		return fmt.Errorf("failed to listen on multicast port: %w", err)
	}
	s.conn = conn

	pconn := ipv4.NewPacketConn(conn)
	ifaces, err := netInterfaces()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to enumerate network interfaces: %w", err)
	}
	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pconn.JoinGroup(iface, &net.UDPAddr{IP: group.IP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		conn.Close()
		return fmt.Errorf("failed to join multicast group %s on any interface", group.IP)
	}
	pconn.SetMulticastTTL(multicastTTL)
	s.pconn = pconn

	unicast, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.unicastPort})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to listen on unicast port: %w", err)
	}
	s.unicast = unicast

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	go s.receiveLoop(ctx, s.unicast)
	go s.receiveLoop(ctx, s.conn)

	s.log.WithStr("group", s.groupAddr).WithInt("unicastPort", s.unicastPort).Info("transport started")
	return nil
}

// UnicastPort is the actual bound port of the unicast socket, which
// differs from the configured one when that was 0 (ephemeral). Returns 0
// before Start.
func (s *Service) UnicastPort() int {
	if s.unicast == nil {
		return 0
	}
	return s.unicast.LocalAddr().(*net.UDPAddr).Port
}

func (s *Service) Close() error {
	var first error
	if s.conn != nil {
		first = s.conn.Close()
	}
	if s.unicast != nil {
		if err := s.unicast.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SendToGroup puts one envelope on the multicast channel. Failure is
// returned to the caller and otherwise swallowed; the protocol reasserts
// state periodically, so a lost datagram heals itself.
func (s *Service) SendToGroup(raw string) error {
	if s.conn == nil {
		return ErrNotStarted
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	_, err := s.conn.WriteToUDP([]byte(raw), s.group)
	if err != nil {
		s.log.WithErr(err).Warn("multicast send failed")
	}
	return err
}

// SendToPeer sends one envelope straight to a peer's unicast socket.
func (s *Service) SendToPeer(raw string, addr *net.UDPAddr) error {
	if s.unicast == nil {
		return ErrNotStarted
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	_, err := s.unicast.WriteToUDP([]byte(raw), addr)
	if err != nil {
		s.log.WithErr(err).WithStr("addr", addr.String()).Warn("unicast send failed")
	}
	return err
}

func (s *Service) receiveLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 2048)

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithErr(err).Warn("udp read failed")
			continue
		}

		s.handleDatagram(string(buf[:n]), remoteAddr)
	}
}

// handleDatagram decodes one raw datagram and fans it out. Malformed or
// unknown-type input is logged and dropped so the loop never dies on bad
// traffic; our own multicast echo is dropped by sender code.
func (s *Service) handleDatagram(raw string, from *net.UDPAddr) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.log.WithErr(err).WithStr("from", from.String()).Debug("dropped datagram")
		return
	}

	if msg.Code == s.selfCode {
		return
	}

	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	for _, h := range handlers {
		h(msg, from)
	}
}
