// Package imap implements the retrieval side of the probe: a strictly
// half-duplex IMAP session that issues one tagged command at a time and
// drains its reply down to the tagged completion before returning.
package imap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/infodancer/mailprobe/internal/metrics"
	"github.com/infodancer/mailprobe/internal/wire"
)

const protocolName = "imap"

// Options configures a Session.
type Options struct {
	Host string
	Port int

	Wire      wire.Options
	Logger    *slog.Logger      // nil → slog.Default()
	Collector metrics.Collector // nil → NoopCollector
}

// Mailbox is the result of SELECT.
type Mailbox struct {
	Existing int
	Recent   int
}

// Session is one IMAP connection. It is not safe for concurrent use.
type Session struct {
	conn      *wire.Conn
	tag       Tag
	state     State
	mailbox   string
	logger    *slog.Logger
	collector metrics.Collector
}

// Open connects and reads the untagged OK greeting.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := opts.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	if opts.Wire.Logger == nil {
		opts.Wire.Logger = logger
	}

	conn, err := wire.Dial(ctx, opts.Host, opts.Port, opts.Wire)
	if err != nil {
		return nil, err
	}
	if _, err := wire.ReadExpected(conn, "*", "OK"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("greeting: %w", err)
	}

	collector.SessionOpened(protocolName)
	s := &Session{
		conn:      conn,
		tag:       FirstTag,
		state:     StateNotAuthenticated,
		logger:    logger.With("protocol", protocolName, "remote", conn.RemoteAddr().String()),
		collector: collector,
	}
	s.logger.Debug("imap session opened")
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Tag returns the tag the next command will carry.
func (s *Session) Tag() Tag {
	return s.tag
}

// Mailbox returns the name of the selected mailbox, or "" before SELECT.
func (s *Session) Mailbox() string {
	return s.mailbox
}

// Login authenticates with LOGIN. A rejection closes the session and returns
// wire.ErrInvalidCredentials.
func (s *Session) Login(username, password string) error {
	cmd, err := s.sendRedacted("LOGIN", astring(username)+" "+astring(password), astring(username)+" "+redacted)
	if err != nil {
		return err
	}
	if err := s.expectAuthCompletion(cmd); err != nil {
		s.collector.AuthAttempt("LOGIN", false)
		return err
	}
	s.collector.AuthAttempt("LOGIN", true)
	s.state = StateAuthenticated
	s.logger.Debug("logged in", "username", username)
	return nil
}

// Logout sends LOGOUT, expects BYE and the tagged completion, and closes the
// transport.
func (s *Session) Logout() error {
	cmd, err := s.send("LOGOUT", "")
	if err != nil {
		return err
	}
	if _, err := wire.ReadExpected(s.conn, "*", "BYE"); err != nil {
		return s.fail(cmd, err)
	}
	if _, err := wire.ReadExpected(s.conn, cmd.Tag.String(), "OK"); err != nil {
		return s.fail(cmd, err)
	}
	s.release()
	s.logger.Debug("logged out")
	return nil
}

// Close drops the transport without LOGOUT. It is safe to call after Logout.
func (s *Session) Close() error {
	if s.state == StateLoggedOut {
		return nil
	}
	return s.release()
}

// Select opens mailbox name and returns its message counts.
func (s *Session) Select(name string) (Mailbox, error) {
	cmd, err := s.send("SELECT", astring(name))
	if err != nil {
		return Mailbox{}, err
	}
	if _, err := wire.ReadExpected(s.conn, "*", "FLAGS"); err != nil {
		return Mailbox{}, s.fail(cmd, err)
	}
	if _, err := wire.ReadExpected(s.conn, "*", "OK"); err != nil {
		return Mailbox{}, s.fail(cmd, err)
	}
	var mb Mailbox
	for _, n := range []*int{&mb.Existing, &mb.Recent} {
		line, err := wire.ReadExpected(s.conn, "*", wire.Wildcard)
		if err != nil {
			return Mailbox{}, s.fail(cmd, err)
		}
		if *n, err = wire.ReadCount(line); err != nil {
			return Mailbox{}, s.fail(cmd, err)
		}
	}
	if err := s.complete(cmd); err != nil {
		return Mailbox{}, err
	}
	s.state = StateSelected
	s.mailbox = name
	return mb, nil
}

// send writes the next tagged command.
func (s *Session) send(verb, args string) (Command, error) {
	return s.sendRedacted(verb, args, args)
}

// sendRedacted sends like send but traces shownArgs instead of args.
func (s *Session) sendRedacted(verb, args, shownArgs string) (Command, error) {
	if s.state == StateLoggedOut {
		return Command{}, wire.ErrSessionClosed
	}
	cmd, next := nextCommand(s.tag, verb, args)
	s.tag = next
	s.collector.CommandSent(protocolName, verb)
	shown := Command{Tag: cmd.Tag, Verb: verb, Args: shownArgs}
	if err := s.conn.WriteSensitiveLine(cmd.String(), shown.String()); err != nil {
		return cmd, s.fail(cmd, err)
	}
	return cmd, nil
}

// complete drains untagged lines up to the tagged completion of cmd and
// requires it to be OK.
func (s *Session) complete(cmd Command) error {
	line, err := wire.ReadUntilTag(s.conn, cmd.Tag.String())
	if err != nil {
		return s.fail(cmd, err)
	}
	if err := wire.Expect(line, cmd.Tag.String(), "OK"); err != nil {
		return s.fail(cmd, err)
	}
	return nil
}

// expectAuthCompletion reads the tagged completion of an authentication
// command. NO and BAD are credential rejections; anything else is a
// transport or protocol failure.
func (s *Session) expectAuthCompletion(cmd Command) error {
	line, err := wire.ReadUntilTag(s.conn, cmd.Tag.String())
	if err != nil {
		return s.fail(cmd, err)
	}
	status := wire.ParseLine(line).Status
	switch {
	case strings.EqualFold(status, "OK"):
		return nil
	case strings.EqualFold(status, "NO"), strings.EqualFold(status, "BAD"):
		return s.fail(cmd, wire.ErrInvalidCredentials)
	default:
		return s.fail(cmd, &wire.UnexpectedResponseError{Line: line, Want: cmd.Tag.String() + " OK"})
	}
}

// fail tears the session down and returns err annotated with the command.
// After a failed exchange the reply stream can no longer be paired with
// commands, so the session is not reused.
func (s *Session) fail(cmd Command, err error) error {
	s.collector.CommandFailed(protocolName, cmd.Verb)
	s.logger.Debug("command failed, closing session", "tag", cmd.Tag.String(), "command", cmd.Verb, "error", err.Error())
	_ = s.release()
	return fmt.Errorf("%s: %w", strings.ToLower(cmd.Verb), err)
}

func (s *Session) release() error {
	if s.state == StateLoggedOut {
		return nil
	}
	s.state = StateLoggedOut
	s.collector.SessionClosed(protocolName)
	return s.conn.Close()
}
