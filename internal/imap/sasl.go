package imap

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/infodancer/mailprobe/internal/wire"
)

// redacted replaces credentials in trace output.
const redacted = "***"

// SupportedSASLMechanisms returns the list of supported SASL mechanisms.
func SupportedSASLMechanisms() []string {
	return []string{sasl.Plain}
}

// EncodeSASLResponse encodes a SASL client response to base64.
func EncodeSASLResponse(response []byte) string {
	return base64.StdEncoding.EncodeToString(response)
}

// DecodeSASLChallenge decodes a base64-encoded server challenge.
func DecodeSASLChallenge(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// Authenticate runs AUTHENTICATE PLAIN for username. The initial response is
// sent after the server's first continuation so servers without SASL-IR are
// served too. A rejection closes the session and returns
// wire.ErrInvalidCredentials.
func (s *Session) Authenticate(username, password string) error {
	return s.AuthenticateWith(sasl.NewPlainClient("", username, password))
}

// AuthenticateWith runs AUTHENTICATE with a SASL client. A mechanism outside
// SupportedSASLMechanisms fails with ErrUnsupportedMechanism before anything
// is written, leaving the session usable.
func (s *Session) AuthenticateWith(client sasl.Client) error {
	mech, ir, err := client.Start()
	if err != nil {
		return fmt.Errorf("sasl start: %w", err)
	}
	if !slices.ContainsFunc(SupportedSASLMechanisms(), func(m string) bool { return strings.EqualFold(m, mech) }) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mech)
	}
	cmd, err := s.send("AUTHENTICATE", mech)
	if err != nil {
		return err
	}

	pending := ir
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.collector.AuthAttempt(mech, false)
			return s.fail(cmd, err)
		}
		l := wire.ParseLine(line)
		switch l.Tag {
		case "*":
			continue
		case "+":
			resp := pending
			pending = nil
			if resp == nil {
				challenge, err := DecodeSASLChallenge(strings.TrimSpace(strings.TrimPrefix(line, "+")))
				if err != nil {
					s.collector.AuthAttempt(mech, false)
					return s.fail(cmd, fmt.Errorf("%w: bad challenge: %v", wire.ErrUnexpectedResponse, err))
				}
				if resp, err = client.Next(challenge); err != nil {
					s.collector.AuthAttempt(mech, false)
					return s.fail(cmd, err)
				}
			}
			if err := s.conn.WriteSensitiveLine(EncodeSASLResponse(resp), redacted); err != nil {
				s.collector.AuthAttempt(mech, false)
				return s.fail(cmd, err)
			}
		case cmd.Tag.String():
			switch {
			case strings.EqualFold(l.Status, "OK"):
				s.collector.AuthAttempt(mech, true)
				s.state = StateAuthenticated
				s.logger.Debug("authenticated", "mechanism", mech)
				return nil
			case strings.EqualFold(l.Status, "NO"), strings.EqualFold(l.Status, "BAD"):
				s.collector.AuthAttempt(mech, false)
				return s.fail(cmd, wire.ErrInvalidCredentials)
			default:
				s.collector.AuthAttempt(mech, false)
				return s.fail(cmd, &wire.UnexpectedResponseError{Line: line, Want: cmd.Tag.String() + " OK"})
			}
		default:
			s.collector.AuthAttempt(mech, false)
			return s.fail(cmd, &wire.UnexpectedResponseError{Line: line, Want: "+ or " + cmd.Tag.String()})
		}
	}
}
