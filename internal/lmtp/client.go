// Package lmtp implements the delivery side of the probe: a minimal LMTP
// client that streams literal, synthetic multipart or on-disk messages to a
// mailbox.
package lmtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/infodancer/mailprobe/internal/metrics"
	"github.com/infodancer/mailprobe/internal/wire"
)

const protocolName = "lmtp"

// Options configures a delivery Client.
type Options struct {
	Host   string
	Port   int
	Domain string // announced with LHLO
	From   string // envelope sender

	Wire      wire.Options
	Logger    *slog.Logger      // nil → slog.Default()
	Collector metrics.Collector // nil → NoopCollector
	Now       func() time.Time  // clock for generated Date headers; nil → time.Now
}

// Client is one LMTP session. It is opened once, delivers any number of
// messages and is closed with Close. A Client is not safe for concurrent use.
type Client struct {
	conn      *wire.Conn
	domain    string
	from      string
	state     State
	logger    *slog.Logger
	collector metrics.Collector
	now       func() time.Time
}

// Open connects and reads the 220 greeting.
func Open(ctx context.Context, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := opts.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Wire.Logger == nil {
		opts.Wire.Logger = logger
	}

	conn, err := wire.Dial(ctx, opts.Host, opts.Port, opts.Wire)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:      conn,
		domain:    opts.Domain,
		from:      opts.From,
		logger:    logger.With("protocol", protocolName, "remote", conn.RemoteAddr().String()),
		collector: collector,
		now:       now,
	}
	if _, err := wire.ExpectCode(conn, 220); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}
	collector.SessionOpened(protocolName)
	c.logger.Debug("lmtp session opened")
	return c, nil
}

// State returns the current handshake state.
func (c *Client) State() State {
	return c.state
}

// Deliver sends message as the literal body of a new mail to recipient to.
// It returns the number of body bytes streamed.
func (c *Client) Deliver(message, to string) (int, error) {
	return c.deliverParts(to, func(w *bodyWriter) error {
		return w.part(message)
	})
}

// DeliverWithAttachment sends a synthetic multipart mail whose text part is
// message and whose octet-stream part decodes to exactly attachmentSize
// bytes. It returns the number of body bytes streamed, attachment included.
func (c *Client) DeliverWithAttachment(message, to string, attachmentSize int) (int, error) {
	if attachmentSize < 0 {
		return 0, fmt.Errorf("attachment size must not be negative: %d", attachmentSize)
	}
	return c.deliverParts(to, func(w *bodyWriter) error {
		return writeMultipart(c.now(), message, attachmentSize, w.part)
	})
}

// DeliverFile streams the raw lines of the file at path as the body.
func (c *Client) DeliverFile(path, to string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open message file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	return c.deliverParts(to, func(w *bodyWriter) error {
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				if err := w.line(line); err != nil {
					return err
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read message file: %w", err)
			}
		}
	})
}

// Close sends QUIT, waits for 221 and releases the transport. Closing an
// already closed client is a no-op.
func (c *Client) Close() error {
	if c.state == StateClosed {
		return nil
	}
	defer c.collector.SessionClosed(protocolName)
	c.state = StateClosed
	defer c.conn.Close()

	if err := c.command("QUIT", 221); err != nil {
		return err
	}
	c.logger.Debug("lmtp session closed")
	return nil
}

// deliverParts runs the LHLO/MAIL/RCPT/DATA handshake, streams the parts
// produced by body and waits for the final acceptance. Any failure is fatal
// for the client.
func (c *Client) deliverParts(to string, body func(w *bodyWriter) error) (size int, err error) {
	if c.state == StateClosed {
		return 0, wire.ErrSessionClosed
	}
	defer func() {
		if err != nil {
			c.fail(err)
		}
	}()

	steps := []struct {
		line  string
		code  int
		after State
	}{
		{"LHLO " + c.domain, 250, StateIdentified},
		{"MAIL FROM:<" + c.from + ">", 250, StateFromSet},
		{"RCPT TO:<" + to + ">", 250, StateToSet},
		{"DATA", 354, StateDataOpen},
	}
	for _, s := range steps {
		if err := c.command(s.line, s.code); err != nil {
			return 0, err
		}
		c.state = s.after
	}

	w := &bodyWriter{c: c}
	err = body(w)
	size = w.n
	if err != nil {
		return size, err
	}
	if err := c.command(".", 250); err != nil {
		return size, err
	}
	c.state = StateSent

	c.collector.MessageDelivered(int64(size))
	c.logger.Debug("message delivered", "to", to, "bytes", size)
	c.state = StateConnected
	return size, nil
}

// bodyWriter streams the DATA section and counts the bytes handed to it.
type bodyWriter struct {
	c *Client
	n int
}

// part writes caller-supplied text. Every "\n" separates two wire lines, so
// a trailing newline becomes a trailing empty line and survives delivery.
func (w *bodyWriter) part(text string) error {
	w.n += len(text)
	for _, line := range strings.Split(text, "\n") {
		if err := w.write(line); err != nil {
			return err
		}
	}
	return nil
}

// line writes one raw line that carries its own terminator.
func (w *bodyWriter) line(raw string) error {
	w.n += len(raw)
	return w.write(strings.TrimSuffix(raw, "\n"))
}

// write sends a single line with CRLF, dot-stuffing a leading ".".
func (w *bodyWriter) write(line string) error {
	line = strings.TrimSuffix(line, "\r")
	if strings.HasPrefix(line, ".") {
		line = "." + line
	}
	return w.c.conn.WriteLine(line)
}

// command writes line and expects a reply with the given code.
func (c *Client) command(line string, code int) error {
	verb, _, _ := strings.Cut(line, " ")
	c.collector.CommandSent(protocolName, verb)
	if err := c.conn.WriteLine(line); err != nil {
		c.collector.CommandFailed(protocolName, verb)
		return fmt.Errorf("%s: %w", verb, err)
	}
	if _, err := wire.ExpectCode(c.conn, code); err != nil {
		c.collector.CommandFailed(protocolName, verb)
		return fmt.Errorf("%s: %w", verb, err)
	}
	return nil
}

func (c *Client) fail(err error) {
	c.logger.Debug("delivery failed, closing session", "state", c.state.String(), "error", err.Error())
	c.state = StateClosed
	_ = c.conn.Close()
	c.collector.SessionClosed(protocolName)
}
