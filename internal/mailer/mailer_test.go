package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/infodancer/mailprobe/internal/config"
	"github.com/infodancer/mailprobe/internal/imap"
	"github.com/infodancer/mailprobe/internal/lmtp"
	"github.com/infodancer/mailprobe/internal/metrics"
	"github.com/infodancer/mailprobe/internal/wire"
	"github.com/infodancer/mailprobe/internal/wire/wiretest"
)

const (
	testUser     = "test"
	testPassword = "testPassword"
	recipient    = "test"
)

type harness struct {
	mailer  *Mailer
	mailbox *wiretest.Mailbox
}

func newHarness(t *testing.T, mutate func(*FacadeConfig)) *harness {
	t.Helper()
	mb := wiretest.NewMailbox(testUser, testPassword)
	lmtpSrv := wiretest.StartLMTP(t, mb)
	imapSrv := wiretest.StartIMAP(t, mb)

	wireOpts := wire.Options{ReadTimeout: 5 * time.Second}
	fc := FacadeConfig{
		Host:     imapSrv.Host(),
		Port:     imapSrv.Port(),
		Username: testUser,
		Password: testPassword,
		Wire:     wireOpts,
	}
	if mutate != nil {
		mutate(&fc)
	}
	m := New(lmtp.Options{
		Host:   lmtpSrv.Host(),
		Port:   lmtpSrv.Port(),
		Domain: "test.com",
		From:   "sender@test.com",
		Wire:   wireOpts,
		Now:    func() time.Time { return time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC) },
	}, NewFacade(fc))
	t.Cleanup(func() { _ = m.Close() })
	return &harness{mailer: m, mailbox: mb}
}

func numberedMessage(n int) string {
	return fmt.Sprintf("Date: Sat, 01 Jan 2000 01:%02d:00 +0000\nSubject: test message %d\n\ntest message %d", n, n, n)
}

func (p *harness) deliver(t *testing.T, message string) {
	t.Helper()
	if _, err := p.mailer.Deliver(context.Background(), message, recipient); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliverThenReceiveReturnsMessageUnchanged(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"numbered", numberedMessage(0)},
		{"trailing newline", "Subject: x\n\nhello\n"},
		{"two trailing newlines", "Subject: x\n\na\n\n"},
		{"dot line", "Subject: x\n\n.\n..\nend\n"},
		{"single line", "x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.deliver(t, tt.msg)

			mails, err := h.mailer.Receive(context.Background())
			if err != nil {
				t.Fatalf("Receive: %v", err)
			}
			if len(mails) != 1 || mails[0] != tt.msg {
				t.Errorf("Receive = %q, want [%q]", mails, tt.msg)
			}
		})
	}
}

func TestReceiveWithAttachmentSizes(t *testing.T) {
	for _, size := range []int{0, 1, 44, 45, 46, 3 << 20} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			p := newHarness(t, nil)
			if _, err := p.mailer.DeliverWithAttachment(context.Background(), "test message two", recipient, size); err != nil {
				t.Fatalf("DeliverWithAttachment: %v", err)
			}
			mails, err := p.mailer.ReceiveWithAttachment(context.Background())
			if err != nil {
				t.Fatalf("ReceiveWithAttachment: %v", err)
			}
			if len(mails) != 1 {
				t.Fatalf("got %d mails, want 1", len(mails))
			}
			if mails[0].Text != "test message two" || mails[0].Size != size {
				t.Errorf("got %+v, want text %q size %d", mails[0], "test message two", size)
			}
		})
	}
}

func TestFiveMessagesInOrderAndHeadersReversed(t *testing.T) {
	ctx := context.Background()
	p := newHarness(t, nil)
	for i := 0; i < 5; i++ {
		p.deliver(t, numberedMessage(i))
	}

	mails, err := p.mailer.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(mails) != 5 {
		t.Fatalf("got %d mails, want 5", len(mails))
	}
	for i, m := range mails {
		if !strings.Contains(m, fmt.Sprintf("test message %d", i)) {
			t.Errorf("mails[%d] = %q", i, m)
		}
	}

	headers, err := p.mailer.ReceiveHeaders(ctx, "date", true)
	if err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if len(headers) != 5 {
		t.Fatalf("got %d headers, want 5", len(headers))
	}
	for i, raw := range headers {
		h, err := imap.ParseHeader(raw)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		if got, want := h.Get("Subject"), fmt.Sprintf("test message %d", 4-i); got != want {
			t.Errorf("headers[%d] subject = %q, want %q", i, got, want)
		}
	}
}

func TestSearchAndStore(t *testing.T) {
	ctx := context.Background()
	p := newHarness(t, nil)
	p.deliver(t, numberedMessage(1))

	seen := imap.SearchQuery{Criterion: imap.Seen{}}
	ids, err := p.mailer.Search(ctx, seen)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("seen before store = %v, want none", ids)
	}

	if err := p.mailer.Store(ctx, `\Seen`); err != nil {
		t.Fatalf("Store: %v", err)
	}
	ids, err = p.mailer.Search(ctx, seen)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != "1" {
		t.Errorf("seen after store = %v, want [1]", ids)
	}

	ids, err = p.mailer.Search(ctx, imap.SearchQuery{Criterion: imap.Seen{}, Negated: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("unseen after store = %v, want none", ids)
	}
}

func TestReceivePart(t *testing.T) {
	p := newHarness(t, nil)
	if _, err := p.mailer.DeliverWithAttachment(context.Background(), "text", recipient, 100); err != nil {
		t.Fatalf("DeliverWithAttachment: %v", err)
	}
	parts, err := p.mailer.ReceivePart(context.Background())
	if err != nil {
		t.Fatalf("ReceivePart: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(parts))
	}
	if !strings.Contains(parts[0].Text, "application/octet-stream") {
		t.Errorf("part = %q", parts[0].Text)
	}
}

func TestWrongPasswordThenRecover(t *testing.T) {
	ctx := context.Background()
	p := newHarness(t, nil)
	p.deliver(t, numberedMessage(0))

	p.mailer.SetPassword("wrong")
	if _, err := p.mailer.Receive(ctx); !errors.Is(err, wire.ErrInvalidCredentials) {
		t.Fatalf("Receive with wrong password = %v, want ErrInvalidCredentials", err)
	}

	p.mailer.SetPassword(testPassword)
	mails, err := p.mailer.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(mails) != 1 {
		t.Errorf("got %d mails, want 1", len(mails))
	}
}

func TestAuthenticatePlain(t *testing.T) {
	p := newHarness(t, func(fc *FacadeConfig) { fc.Auth = config.AuthPlain })
	p.deliver(t, numberedMessage(0))

	mails, err := p.mailer.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(mails) != 1 {
		t.Errorf("got %d mails, want 1", len(mails))
	}

	p.mailer.SetPassword("wrong")
	if _, err := p.mailer.Receive(context.Background()); !errors.Is(err, wire.ErrInvalidCredentials) {
		t.Errorf("Receive = %v, want ErrInvalidCredentials", err)
	}
}

func TestReceiveUnreadableIsBrokenStream(t *testing.T) {
	p := newHarness(t, nil)
	p.deliver(t, numberedMessage(0))
	p.mailbox.SetUnreadable(true)

	if _, err := p.mailer.Receive(context.Background()); !errors.Is(err, wire.ErrBrokenStream) {
		t.Errorf("Receive = %v, want ErrBrokenStream", err)
	}
}

type sequenceSampler struct {
	values []int64
	calls  int
	err    error
}

func (s *sequenceSampler) SampleRSS(context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	v := s.values[s.calls]
	s.calls++
	return v, nil
}

func TestMultipleReceiveCycles(t *testing.T) {
	p := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		p.deliver(t, numberedMessage(i))
	}

	sampler := &sequenceSampler{values: []int64{1000, 1480}}
	delta, err := p.mailer.MultipleReceiveCycles(context.Background(), 4, sampler)
	if err != nil {
		t.Fatalf("MultipleReceiveCycles: %v", err)
	}
	if delta != 480 {
		t.Errorf("delta = %d, want 480", delta)
	}
	if sampler.calls != 2 {
		t.Errorf("sampler calls = %d, want 2", sampler.calls)
	}
}

func TestMultipleReceiveCyclesSamplerError(t *testing.T) {
	p := newHarness(t, nil)
	p.deliver(t, numberedMessage(0))

	boom := errors.New("ps failed")
	_, err := p.mailer.MultipleReceiveCycles(context.Background(), 1, &sequenceSampler{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestSessionLimiterBoundsFacade(t *testing.T) {
	ctx := context.Background()

	full := newHarness(t, func(fc *FacadeConfig) { fc.Limiter = NewSessionLimiter(0) })
	if _, err := full.mailer.Receive(ctx); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("Receive = %v, want ErrTooManySessions", err)
	}

	limiter := NewSessionLimiter(1)
	one := newHarness(t, func(fc *FacadeConfig) { fc.Limiter = limiter })
	for i := 0; i < 3; i++ {
		if _, err := one.mailer.Receive(ctx); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}
	if limiter.Open() != 0 {
		t.Errorf("slots held after sessions = %d, want 0", limiter.Open())
	}

	one.mailer.SetPassword("wrong")
	_, _ = one.mailer.Receive(ctx)
	if limiter.Open() != 0 {
		t.Errorf("slots held after failed session = %d, want 0", limiter.Open())
	}
}

func TestCanceledContext(t *testing.T) {
	p := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.mailer.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive = %v, want context.Canceled", err)
	}
}

func TestMailerCloseWithoutDelivery(t *testing.T) {
	p := newHarness(t, nil)
	if err := p.mailer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDeliverReusesConnection(t *testing.T) {
	p := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		p.deliver(t, numberedMessage(i))
	}
	if p.mailbox.Len() != 3 {
		t.Errorf("mailbox has %d messages, want 3", p.mailbox.Len())
	}
	if err := p.mailer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.deliver(t, numberedMessage(3))
	if p.mailbox.Len() != 4 {
		t.Errorf("mailbox has %d messages after reopen, want 4", p.mailbox.Len())
	}
}

func TestConcurrentDeliveriesShareConnection(t *testing.T) {
	h := newHarness(t, nil)
	const n = 8

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.mailer.Deliver(context.Background(), numberedMessage(i), recipient); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Deliver: %v", err)
	}
	if h.mailbox.Len() != n {
		t.Errorf("mailbox has %d messages, want %d", h.mailbox.Len(), n)
	}
}

func TestDeliverCanceledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.mailer.Deliver(ctx, numberedMessage(0), recipient); !errors.Is(err, context.Canceled) {
		t.Errorf("Deliver = %v, want context.Canceled", err)
	}
	if h.mailbox.Len() != 0 {
		t.Errorf("mailbox has %d messages, want 0", h.mailbox.Len())
	}
}

func TestCollectorSeesSessions(t *testing.T) {
	c := &countingCollector{}
	p := newHarness(t, func(fc *FacadeConfig) { fc.Collector = c })
	p.deliver(t, numberedMessage(0))
	if _, err := p.mailer.Receive(context.Background()); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if c.opened != 1 || c.closed != 1 {
		t.Errorf("opened=%d closed=%d, want 1/1", c.opened, c.closed)
	}
	if c.fetched != 1 {
		t.Errorf("fetched = %d, want 1", c.fetched)
	}
}

type countingCollector struct {
	metrics.NoopCollector
	opened, closed, fetched int
}

func (c *countingCollector) SessionOpened(string) { c.opened++ }
func (c *countingCollector) SessionClosed(string) { c.closed++ }
func (c *countingCollector) MessageFetched(int64) { c.fetched++ }

func TestEmptyMailbox(t *testing.T) {
	ctx := context.Background()
	p := newHarness(t, nil)

	mails, err := p.mailer.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(mails) != 0 {
		t.Errorf("Receive = %q, want none", mails)
	}
	headers, err := p.mailer.ReceiveHeaders(ctx, "date", false)
	if err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("ReceiveHeaders = %q, want none", headers)
	}
	if err := p.mailer.Store(ctx, `\Seen`); err != nil {
		t.Errorf("Store on empty mailbox: %v", err)
	}
}
