// Package wiretest provides loopback LMTP and IMAP servers for exercising the
// clients without an external mail server.
package wiretest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Handler serves one accepted connection.
type Handler func(p *Peer)

// Server accepts loopback TCP connections and runs a Handler on each one.
type Server struct {
	ln      net.Listener
	handler Handler

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

// Start listens on 127.0.0.1 with a random port. The server is shut down by
// t.Cleanup.
func Start(t testing.TB, h Handler) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		ln:      ln,
		handler: h,
	}
	s.wg.Add(1)
	go s.acceptLoop(t)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) acceptLoop(t testing.TB) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handler(&Peer{t: t, conn: conn, r: bufio.NewReader(conn)})
		}()
	}
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Peer is the server side of one connection.
type Peer struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// Send writes each line followed by CRLF.
func (p *Peer) Send(lines ...string) {
	for _, l := range lines {
		if _, err := fmt.Fprintf(p.conn, "%s\r\n", l); err != nil {
			return
		}
	}
}

// Recv reads one line without its terminator. ok is false once the client
// has gone away.
func (p *Peer) Recv() (line string, ok bool) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// Expect reads one line and reports a test error when it differs from want.
func (p *Peer) Expect(want string) bool {
	got, ok := p.Recv()
	if !ok {
		p.t.Errorf("expected %q, connection closed", want)
		return false
	}
	if got != want {
		p.t.Errorf("expected %q, got %q", want, got)
		return false
	}
	return true
}

// Close drops the connection without any protocol goodbye.
func (p *Peer) Close() {
	_ = p.conn.Close()
}
