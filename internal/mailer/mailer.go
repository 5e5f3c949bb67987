package mailer

import (
	"context"
	"sync"

	"github.com/infodancer/mailprobe/internal/lmtp"
)

// Mailer pairs one long-lived delivery client with a retrieval Facade. The
// delivery connection is opened by the first delivery and kept until Close.
// Deliveries share that connection and are serialized; retrieval calls on the
// embedded Facade still run concurrently.
type Mailer struct {
	*Facade

	opts lmtp.Options

	mu     sync.Mutex // guards client and serializes deliveries
	client *lmtp.Client
}

// New returns a Mailer delivering with opts and retrieving through facade.
func New(opts lmtp.Options, facade *Facade) *Mailer {
	return &Mailer{Facade: facade, opts: opts}
}

// Deliver sends message to recipient to and returns the body bytes streamed.
func (m *Mailer) Deliver(ctx context.Context, message, to string) (int, error) {
	return m.withClient(ctx, func(c *lmtp.Client) (int, error) {
		return c.Deliver(message, to)
	})
}

// DeliverWithAttachment sends a multipart message carrying a synthetic
// attachment of attachmentSize bytes.
func (m *Mailer) DeliverWithAttachment(ctx context.Context, message, to string, attachmentSize int) (int, error) {
	return m.withClient(ctx, func(c *lmtp.Client) (int, error) {
		return c.DeliverWithAttachment(message, to, attachmentSize)
	})
}

// DeliverFile sends the contents of the file at path.
func (m *Mailer) DeliverFile(ctx context.Context, path, to string) (int, error) {
	return m.withClient(ctx, func(c *lmtp.Client) (int, error) {
		return c.DeliverFile(path, to)
	})
}

// Close quits the delivery session if one was opened. It waits for a
// delivery in progress.
func (m *Mailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// withClient runs fn with the delivery client while holding mu, connecting
// on first use. A client torn down by a failed delivery is not replaced; its
// error is surfaced to the caller until Close.
func (m *Mailer) withClient(ctx context.Context, fn func(*lmtp.Client) (int, error)) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.client == nil {
		c, err := lmtp.Open(ctx, m.opts)
		if err != nil {
			return 0, err
		}
		m.client = c
	}
	return fn(m.client)
}
