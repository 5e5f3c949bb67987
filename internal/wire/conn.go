// Package wire implements the newline-delimited text channel shared by the
// LMTP and IMAP clients, together with the response parsing rules both
// protocols rely on.
package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Options configures a Conn.
type Options struct {
	// Trace logs every line sent and received at debug level.
	Trace bool

	// DialTimeout bounds connection establishment. Zero means no limit.
	DialTimeout time.Duration

	// ReadTimeout bounds every ReadLine call. Zero blocks until the peer
	// answers or closes the connection.
	ReadTimeout time.Duration

	// Logger receives trace output. nil → slog.Default().
	Logger *slog.Logger
}

// Conn is a duplex line channel over a reliable transport. A Conn is not safe
// for concurrent use; the protocols spoken over it are strictly half-duplex.
type Conn struct {
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	trace       bool
	readTimeout time.Duration
	logger      *slog.Logger
}

// Dial connects to host:port and returns a Conn.
func Dial(ctx context.Context, host string, port int, opts Options) (*Conn, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}
	return NewConn(nc, opts), nil
}

// NewConn wraps an established transport.
func NewConn(nc net.Conn, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		conn:        nc,
		reader:      bufio.NewReader(nc),
		writer:      bufio.NewWriter(nc),
		trace:       opts.Trace,
		readTimeout: opts.ReadTimeout,
		logger:      logger,
	}
}

// WriteLine writes text followed by CRLF and flushes.
func (c *Conn) WriteLine(text string) error {
	return c.WriteSensitiveLine(text, text)
}

// WriteSensitiveLine writes text like WriteLine but traces shown in its
// place, so credentials never reach the log.
func (c *Conn) WriteSensitiveLine(text, shown string) error {
	if c.trace {
		c.logger.Debug("C: " + shown)
	}
	if _, err := c.writer.WriteString(text); err != nil {
		return fmt.Errorf("%w: write: %v", ErrBrokenStream, err)
	}
	if _, err := c.writer.WriteString("\r\n"); err != nil {
		return fmt.Errorf("%w: write: %v", ErrBrokenStream, err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrBrokenStream, err)
	}
	return nil
}

// ReadLine blocks until a full line is available and returns it without its
// terminator. A stream that ends before a complete line is ErrBrokenStream.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return "", fmt.Errorf("%w: set deadline: %v", ErrBrokenStream, err)
		}
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return "", fmt.Errorf("%w: peer closed connection", ErrBrokenStream)
		case errors.Is(err, os.ErrDeadlineExceeded):
			return "", fmt.Errorf("%w: read timeout", ErrBrokenStream)
		default:
			return "", fmt.Errorf("%w: read: %v", ErrBrokenStream, err)
		}
	}
	line = strings.TrimRight(line, "\r\n")
	if c.trace {
		c.logger.Debug("S: " + line)
	}
	return line, nil
}

// Close releases the transport.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
