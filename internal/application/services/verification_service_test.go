package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/verification"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
)

type fakeRepository struct {
	mu     sync.Mutex
	emails map[string]*verification.EmailRecord
	codes  map[string]verification.PendingCode
	links  map[string]verification.MagicLink
	err    error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		emails: map[string]*verification.EmailRecord{},
		codes:  map[string]verification.PendingCode{},
		links:  map[string]verification.MagicLink{},
	}
}

func (r *fakeRepository) FindEmail(_ context.Context, email string) (*verification.EmailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.emails[email]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepository) EnsureEmail(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.emails[email]; !ok {
		r.emails[email] = &verification.EmailRecord{Email: email, CreatedAt: at, UpdatedAt: at}
	}
	return nil
}

func (r *fakeRepository) MarkVerified(_ context.Context, email string, source verification.Source, at time.Time) (*verification.EmailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.emails[email]
	if !ok {
		rec = &verification.EmailRecord{Email: email, CreatedAt: at}
		r.emails[email] = rec
	}
	rec.Verified = true
	rec.Source = source
	rec.UpdatedAt = at
	if rec.VerifiedAt == nil {
		rec.VerifiedAt = &at
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepository) SaveCode(_ context.Context, code verification.PendingCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.codes[code.Email] = code
	return nil
}

func (r *fakeRepository) FindCode(_ context.Context, email string) (*verification.PendingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	code, ok := r.codes[email]
	if !ok {
		return nil, nil
	}
	return &code, nil
}

func (r *fakeRepository) ConsumeCode(_ context.Context, email, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	code, ok := r.codes[email]
	if !ok || code.CodeHash != codeHash {
		return false, nil
	}
	delete(r.codes, email)
	return true, nil
}

func (r *fakeRepository) RecordCodeMiss(_ context.Context, email, codeHash string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	code, ok := r.codes[email]
	if !ok || code.CodeHash != codeHash {
		return false, nil
	}
	code.Attempts++
	if code.Attempts >= limit {
		delete(r.codes, email)
		return true, nil
	}
	r.codes[email] = code
	return false, nil
}

func (r *fakeRepository) SaveMagicLink(_ context.Context, link verification.MagicLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.links[link.Token] = link
	return nil
}

func (r *fakeRepository) TakeMagicLink(_ context.Context, token string) (*verification.MagicLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	link, ok := r.links[token]
	if !ok {
		return nil, nil
	}
	delete(r.links, token)
	return &link, nil
}

func (r *fakeRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, c := range r.codes {
		if c.Expired(now) {
			delete(r.codes, k)
			n++
		}
	}
	for k, l := range r.links {
		if l.Expired(now) {
			delete(r.links, k)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepository) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

type sentMail struct {
	to    string
	code  string
	link  string
	ttl   time.Duration
	magic bool
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, code: code, ttl: ttl})
	return nil
}

func (m *fakeMailer) SendMagicLink(_ context.Context, to, link string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, link: link, ttl: ttl, magic: true})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

func newVerificationFixture(t *testing.T) (*VerificationService, *fakeRepository, *fakeMailer, *clock.FakeClock) {
	t.Helper()
	repo := newFakeRepository()
	mailer := &fakeMailer{}
	clk := clock.Fake(time.Now().UTC())
	svc := NewVerificationService(repo, mailer, clk, VerificationConfig{
		CodeTTL:          15 * time.Minute,
		MagicLinkTTL:     15 * time.Minute,
		MagicLinkBaseURL: "https://signals.example/api/v1/verify/magic-link",
	}, nil, nil)
	return svc, repo, mailer, clk
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	if res := svc.RequestCode(ctx, "Trader@Example.com"); res.Outcome != OutcomeSent {
		t.Fatalf("request: %+v", res)
	}
	mail := mailer.last(t)
	if mail.to != "trader@example.com" {
		t.Fatalf("mail sent to %q", mail.to)
	}

	if res := svc.VerifyCode(ctx, "trader@example.com", mail.code); res.Outcome != OutcomeVerified || !res.Success {
		t.Fatalf("first verify: %+v", res)
	}
	if res := svc.VerifyCode(ctx, "trader@example.com", mail.code); res.Outcome != OutcomeExpired {
		t.Fatalf("replayed code: %+v", res)
	}

	status := svc.CheckEmailStatus(ctx, "trader@example.com")
	if !status.Verified || !status.Exists {
		t.Fatalf("status after verify: %+v", status)
	}
}

func TestVerifyCodeMismatchKeepsCode(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestCode(ctx, "trader@example.com")
	code := mailer.last(t).code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	if res := svc.VerifyCode(ctx, "trader@example.com", wrong); res.Outcome != OutcomeInvalidCode {
		t.Fatalf("wrong code: %+v", res)
	}
	if res := svc.VerifyCode(ctx, "trader@example.com", code); res.Outcome != OutcomeVerified {
		t.Fatalf("right code after mismatch: %+v", res)
	}
}

func TestVerifyCodeRetiredAfterRepeatedMisses(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestCode(ctx, "trader@example.com")
	code := mailer.last(t).code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < DefaultMaxCodeAttempts; i++ {
		if res := svc.VerifyCode(ctx, "trader@example.com", wrong); res.Outcome != OutcomeInvalidCode {
			t.Fatalf("miss %d: %+v", i+1, res)
		}
	}
	if res := svc.VerifyCode(ctx, "trader@example.com", code); res.Outcome != OutcomeExpired {
		t.Fatalf("right code after %d misses: %+v", DefaultMaxCodeAttempts, res)
	}

	svc.RequestCode(ctx, "trader@example.com")
	if res := svc.VerifyCode(ctx, "trader@example.com", mailer.last(t).code); res.Outcome != OutcomeVerified {
		t.Fatalf("fresh code after retirement: %+v", res)
	}
}

func TestVerifyCodeOutcomes(t *testing.T) {
	svc, _, mailer, clk := newVerificationFixture(t)
	ctx := context.Background()

	if res := svc.VerifyCode(ctx, "trader@example.com", "12ab56"); res.Outcome != OutcomeInvalidCode {
		t.Fatalf("malformed code: %+v", res)
	}
	if res := svc.VerifyCode(ctx, "trader@example.com", "123456"); res.Outcome != OutcomeExpired {
		t.Fatalf("never requested: %+v", res)
	}

	svc.RequestCode(ctx, "trader@example.com")
	code := mailer.last(t).code
	clk.Advance(16 * time.Minute)
	if res := svc.VerifyCode(ctx, "trader@example.com", code); res.Outcome != OutcomeExpired {
		t.Fatalf("expired code: %+v", res)
	}
}

func TestNewCodeReplacesOld(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestCode(ctx, "trader@example.com")
	first := mailer.last(t).code
	svc.RequestCode(ctx, "trader@example.com")
	second := mailer.last(t).code
	if first == second {
		t.Skip("random codes collided")
	}

	if res := svc.VerifyCode(ctx, "trader@example.com", first); res.Outcome != OutcomeInvalidCode {
		t.Fatalf("superseded code: %+v", res)
	}
}

func TestCheckEmailStatusHidesUnverified(t *testing.T) {
	svc, repo, _, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestCode(ctx, "pending@example.com")
	if status := svc.CheckEmailStatus(ctx, "pending@example.com"); status.Exists || status.Verified {
		t.Fatalf("unverified email exposed: %+v", status)
	}
	if status := svc.CheckEmailStatus(ctx, "unknown@example.com"); status.Exists || status.Verified {
		t.Fatalf("unknown email: %+v", status)
	}

	lookup, err := svc.LookupEmailStatus(ctx, "pending@example.com")
	if err != nil || !lookup.Exists || lookup.Verified {
		t.Fatalf("authenticated lookup: %+v %v", lookup, err)
	}

	repo.fail(errors.New("database is locked"))
	if status := svc.CheckEmailStatus(ctx, "pending@example.com"); status.Verified {
		t.Fatal("status should fail soft")
	}
	if _, err := svc.LookupEmailStatus(ctx, "pending@example.com"); err == nil {
		t.Fatal("authenticated lookup should surface store errors")
	}
}

func TestMagicLinkFlow(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	if res := svc.RequestMagicLink(ctx, "trader@example.com"); res.Outcome != OutcomeSent {
		t.Fatalf("request: %+v", res)
	}
	token := tokenFrom(t, mailer.last(t).link)

	if res := svc.VerifyMagicLink(ctx, token); res.Outcome != OutcomeVerified || res.Email != "trader@example.com" {
		t.Fatalf("verify: %+v", res)
	}
	if res := svc.VerifyMagicLink(ctx, token); res.Outcome != OutcomeExpiredToken {
		t.Fatalf("replayed link: %+v", res)
	}
	if res := svc.VerifyMagicLink(ctx, "not a token"); res.Outcome != OutcomeInvalidToken {
		t.Fatalf("malformed token: %+v", res)
	}
}

func TestMagicLinkExpiry(t *testing.T) {
	svc, _, mailer, clk := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestMagicLink(ctx, "trader@example.com")
	token := tokenFrom(t, mailer.last(t).link)
	clk.Advance(15 * time.Minute)

	if res := svc.VerifyMagicLink(ctx, token); res.Outcome != OutcomeExpiredToken {
		t.Fatalf("expired link: %+v", res)
	}
	if status := svc.CheckEmailStatus(ctx, "trader@example.com"); status.Verified {
		t.Fatal("expired link verified the address")
	}
}

func TestConcurrentMagicLinkRedemption(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestMagicLink(ctx, "trader@example.com")
	token := tokenFrom(t, mailer.last(t).link)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := svc.VerifyMagicLink(ctx, token)
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[OutcomeVerified] != 1 || outcomes[OutcomeExpiredToken] != 9 {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestMissingConfigurationIsUnavailable(t *testing.T) {
	svc := NewVerificationService(nil, nil, clock.Real(), VerificationConfig{}, nil, nil)
	ctx := context.Background()

	if res := svc.RequestCode(ctx, "trader@example.com"); res.Outcome != OutcomeUnavailable || res.Success {
		t.Fatalf("request code: %+v", res)
	}
	if res := svc.VerifyCode(ctx, "trader@example.com", "123456"); res.Outcome != OutcomeUnavailable {
		t.Fatalf("verify code: %+v", res)
	}
	token := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if res := svc.VerifyMagicLink(ctx, token); res.Outcome != OutcomeUnavailable {
		t.Fatalf("verify link: %+v", res)
	}
	if status := svc.CheckEmailStatus(ctx, "trader@example.com"); status.Verified {
		t.Fatal("unconfigured status reported verified")
	}
	if _, err := svc.LookupEmailStatus(ctx, "trader@example.com"); !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("lookup err = %v", err)
	}
}

func TestStoreFaultsAreRetryable(t *testing.T) {
	svc, repo, mailer, _ := newVerificationFixture(t)
	ctx := context.Background()

	svc.RequestCode(ctx, "trader@example.com")
	code := mailer.last(t).code
	repo.fail(errors.New("connection reset"))

	res := svc.VerifyCode(ctx, "trader@example.com", code)
	if res.Outcome != OutcomeFailed || !res.Retryable || res.Success {
		t.Fatalf("store fault: %+v", res)
	}
	if res.Error == "connection reset" {
		t.Fatal("store error leaked to caller")
	}

	repo.fail(nil)
	if res := svc.VerifyCode(ctx, "trader@example.com", code); res.Outcome != OutcomeVerified {
		t.Fatalf("retry after fault: %+v", res)
	}
}

func TestMailerFailureIsRetryable(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	mailer.err = errors.New("resend: 500")

	res := svc.RequestCode(context.Background(), "trader@example.com")
	if res.Outcome != OutcomeFailed || !res.Retryable {
		t.Fatalf("mailer failure: %+v", res)
	}
}

func TestRequestRejectsInvalidEmail(t *testing.T) {
	svc, _, mailer, _ := newVerificationFixture(t)
	if res := svc.RequestCode(context.Background(), "not-an-email"); res.Outcome != OutcomeInvalidEmail {
		t.Fatalf("invalid email: %+v", res)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("mail sent for invalid address")
	}
}
