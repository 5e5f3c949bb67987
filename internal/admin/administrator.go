package admin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/infodancer/mailprobe/internal/wire"
)

// fetchSeparator separates messages in the tool's fetch output.
const fetchSeparator = "\f\n"

// Administrator wraps the server's administrative tool (doveadm) for one
// user. Operations that take a password pass it through a pipe rather than
// the argument list; an empty password means none is supplied.
type Administrator struct {
	Binary     string
	ConfigPath string
	Username   string

	// HomeMailPath is the user's mail directory that Decrypt and Encrypt
	// replace with the re-synced copy at SyncPath.
	HomeMailPath string
	SyncPath     string

	Runner Runner
	Logger *slog.Logger // nil → slog.Default()
}

// Fetch returns the text of every message in the user's inbox.
func (a *Administrator) Fetch(ctx context.Context, password string) ([]string, error) {
	out, err := a.run(ctx, password, "fetch", "-u", a.Username, "text", "mailbox", "inbox")
	if err != nil {
		return nil, err
	}
	parts := splitFetchOutput(out)
	for i, p := range parts {
		parts[i] = strings.TrimPrefix(p, "text:")
	}
	return parts, nil
}

// FetchHeader returns the header block of every message in the user's inbox.
func (a *Administrator) FetchHeader(ctx context.Context, password string) ([]string, error) {
	out, err := a.run(ctx, password, "fetch", "-u", a.Username, "hdr", "mailbox", "inbox")
	if err != nil {
		return nil, err
	}
	return splitFetchOutput(out), nil
}

// Decrypt rewrites the user's mail without encryption.
func (a *Administrator) Decrypt(ctx context.Context, password string) error {
	return a.resync(ctx, password, false)
}

// Encrypt rewrites the user's mail with encryption.
func (a *Administrator) Encrypt(ctx context.Context, password string) error {
	return a.resync(ctx, password, true)
}

// Clear removes a leftover sync copy.
func (a *Administrator) Clear() error {
	if err := os.RemoveAll(a.SyncPath); err != nil {
		return fmt.Errorf("clear sync path: %w", err)
	}
	return nil
}

// resync syncs the mailbox into SyncPath with encryption switched on or off
// and moves the copy over the user's mail directory.
func (a *Administrator) resync(ctx context.Context, password string, enabled bool) error {
	flag := "plugin/scrambler_enabled=" + strconv.Itoa(boolToInt(enabled))
	if _, err := a.run(ctx, password, "-o", flag, "sync", "-u", a.Username, "mdbox:"+a.SyncPath); err != nil {
		return err
	}
	if err := os.RemoveAll(a.HomeMailPath); err != nil {
		return fmt.Errorf("remove mail directory: %w", err)
	}
	if err := os.Rename(a.SyncPath, a.HomeMailPath); err != nil {
		return fmt.Errorf("replace mail directory: %w", err)
	}
	a.logger().Debug("mail directory replaced", "encrypted", enabled, "path", a.HomeMailPath)
	return nil
}

// run invokes the tool and maps its exit status.
func (a *Administrator) run(ctx context.Context, password string, args ...string) (string, error) {
	argv := []string{"-c", a.ConfigPath, "-D"}
	cmd := Command{Path: a.Binary}
	if password != "" {
		argv = append(argv, "-o", "plugin/scrambler_plain_password_fd="+strconv.Itoa(ExtraInputFD))
		// The tool reads the password twice: once to unlock and once to
		// confirm.
		cmd.ExtraInput = []byte(password + "\n" + password + "\n")
	}
	cmd.Args = append(argv, args...)

	res, err := a.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	switch res.Status {
	case 0:
		return string(res.Output), nil
	case InvalidPasswordStatus:
		a.logger().Debug("administrative tool rejected password", "user", a.Username)
		return "", wire.ErrInvalidCredentials
	default:
		return "", &ExitError{Path: a.Binary, Status: res.Status, Output: string(res.Output)}
	}
}

func (a *Administrator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// splitFetchOutput splits fetch output into messages, dropping trailing empty
// entries.
func splitFetchOutput(out string) []string {
	parts := strings.Split(out, fetchSeparator)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
