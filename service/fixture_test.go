package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/gatekeeper/adapters/hasher"
	"github.com/layer-3/gatekeeper/adapters/limiter"
	"github.com/layer-3/gatekeeper/adapters/store"
	"github.com/layer-3/gatekeeper/adapters/tokenizer"
	"github.com/layer-3/gatekeeper/adapters/users"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]any
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, address, template string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: address, Template: template, Data: data})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (p *recordingPublisher) PublishSessionEvent(_ context.Context, event core.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []core.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingHasher struct {
	ports.PasswordHasher
	compares atomic.Int32
}

func (h *countingHasher) Compare(hash, password string) error {
	h.compares.Add(1)
	return h.PasswordHasher.Compare(hash, password)
}

type fixture struct {
	clock     *testClock
	users     *users.MemoryStore
	tokenizer *tokenizer.JWTTokenizer
	denylist  *store.MemoryStore
	limiter   *limiter.SlidingWindow
	mailer    *recordingMailer
	events    *recordingPublisher
	auth      *AuthService
	guard     *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lg := zaptest.NewLogger(t)
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "gatekeeper",
	})
	require.NoError(t, err)
	tok.WithClock(clock.Now)

	f := &fixture{
		clock:     clock,
		users:     users.NewMemoryStore(),
		tokenizer: tok,
		denylist:  store.NewMemoryStore().WithClock(clock.Now),
		limiter:   limiter.NewSlidingWindow(lg).WithClock(clock.Now),
		mailer:    &recordingMailer{},
		events:    &recordingPublisher{},
	}
	f.auth = NewAuthService(tok, f.users, hasher.NewBcrypt(bcrypt.MinCost), f.mailer, f.events,
		AuthConfig{AppURL: "https://app.example.com/"}, lg).
		WithDenylist(f.denylist).
		WithClock(clock.Now)
	f.guard = NewGuard(tok, f.users, f.limiter, lg).
		WithDenylist(f.denylist).
		WithClock(clock.Now)
	return f
}

func (f *fixture) register(t *testing.T, email string) *Session {
	t.Helper()
	session, err := f.auth.Register(context.Background(), RegisterInput{
		Name:     "Jane",
		Email:    email,
		Password: "secret123",
	})
	require.NoError(t, err)
	return session
}

// update applies fn to the stored account.
func (f *fixture) update(t *testing.T, id string, fn func(*core.Account)) {
	t.Helper()
	ctx := context.Background()
	acc, err := f.users.FindByID(ctx, id)
	require.NoError(t, err)
	fn(acc)
	require.NoError(t, f.users.Save(ctx, acc))
}
