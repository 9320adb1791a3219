package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/application/engine"
	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/performance"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
)

var (
	ErrInvalidVisitor = errors.New("invalid visitor id")
	ErrServiceClosed  = errors.New("visitor service closed")
)

// VisitorConfig holds the marker cookie settings.
type VisitorConfig struct {
	MarkerSecret string
	MarkerTTL    time.Duration
}

// SubmissionResult is the outcome of a code or magic link redemption
// applied to a visitor.
type SubmissionResult struct {
	Verification *VerificationResult `json:"verification"`
	State        *engine.Snapshot    `json:"state,omitempty"`
	// MarkerToken is the signed verified-email marker, set on success.
	MarkerToken string `json:"-"`
}

// ReconcileInput carries the cookies read at page load.
type ReconcileInput struct {
	MarkerToken string
	Toast       string
	Sync        string
}

// ReconcileResult reports what reconciliation changed.
type ReconcileResult struct {
	State    engine.Snapshot `json:"state"`
	Verified bool            `json:"verified"`
	Revoked  bool            `json:"revoked"`
	Changed  bool            `json:"changed"`
	Synced   bool            `json:"synced"`
	Toast    string          `json:"toast,omitempty"`
	// ClearMarker asks the caller to drop a marker cookie that failed
	// validation or corroboration.
	ClearMarker bool `json:"-"`
}

type visitorEntry struct {
	engine   *engine.Engine
	lastSeen time.Time
}

// VisitorService owns one engine per visitor. Engines are created on first
// use over a per-visitor view of the shared client state backend and
// dropped again once idle.
type VisitorService struct {
	mu       sync.Mutex
	visitors map[string]*visitorEntry
	closed   bool

	listenerMu sync.RWMutex
	listener   engine.Listener

	backend     clientstate.Backend
	policy      gating.Policy
	clock       clock.Clock
	verifier    *VerificationService
	cfg         VisitorConfig
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewVisitorService creates a new visitor service.
func NewVisitorService(backend clientstate.Backend, policy gating.Policy, clk clock.Clock, verifier *VerificationService, cfg VisitorConfig, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VisitorService {
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if perfTracker == nil {
		perfTracker = performance.NewTracker(nil)
	}
	if backend == nil {
		backend = clientstate.UnavailableBackend{}
	}
	return &VisitorService{
		visitors:    make(map[string]*visitorEntry),
		backend:     backend,
		policy:      policy,
		clock:       clk,
		verifier:    verifier,
		cfg:         cfg,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Policy returns the policy every engine runs with.
func (s *VisitorService) Policy() gating.Policy { return s.policy }

// SetListener routes engine events, for every visitor, to fn.
func (s *VisitorService) SetListener(fn engine.Listener) {
	s.listenerMu.Lock()
	s.listener = fn
	s.listenerMu.Unlock()
}

func (s *VisitorService) publish(ev engine.Event) {
	s.listenerMu.RLock()
	fn := s.listener
	s.listenerMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Engine returns the visitor's engine, creating and mounting it on first
// use.
func (s *VisitorService) Engine(visitorID string) (*engine.Engine, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, ErrInvalidVisitor
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	now := s.clock.Now()
	if entry, ok := s.visitors[visitorID]; ok {
		entry.lastSeen = now
		s.mu.Unlock()
		return entry.engine, nil
	}

	eng := engine.New(engine.Options{
		VisitorID: visitorID,
		Policy:    s.policy,
		Clock:     s.clock,
		Stores:    clientstate.NewStores(clientstate.Scoped(s.backend, visitorID), s.clock, s.policy.Timing.SessionExpiry, s.logger),
		Logger:    s.logger,
		Listener:  s.publish,
	})
	s.visitors[visitorID] = &visitorEntry{engine: eng, lastSeen: now}
	s.mu.Unlock()

	eng.Mount()
	s.logger.WithVisitor(logging.ChannelGate, visitorID).Debug("Visitor engine created")
	return eng, nil
}

// Mount is the page-load hook for a visitor.
func (s *VisitorService) Mount(visitorID string) (engine.Snapshot, error) {
	eng, err := s.Engine(visitorID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return eng.Mount(), nil
}

// Reset destroys the visitor's persisted state.
func (s *VisitorService) Reset(visitorID string) error {
	eng, err := s.Engine(visitorID)
	if err != nil {
		return err
	}
	eng.Reset()
	return nil
}

// EvictIdle closes and forgets engines unused for longer than maxIdle.
// Persisted state is kept; the next request recreates the engine.
func (s *VisitorService) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.clock.Now().Add(-maxIdle)

	s.mu.Lock()
	var evicted []*engine.Engine
	for id, entry := range s.visitors {
		if entry.lastSeen.Before(cutoff) {
			evicted = append(evicted, entry.engine)
			delete(s.visitors, id)
		}
	}
	s.mu.Unlock()

	for _, eng := range evicted {
		eng.Close()
	}
	if len(evicted) > 0 {
		s.logger.Gate().Debug("Evicted idle visitor engines", "count", len(evicted))
	}
	return len(evicted)
}

// ActiveVisitors returns the ids of engines currently held, sorted.
func (s *VisitorService) ActiveVisitors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.visitors))
	for id := range s.visitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every engine. Later Engine calls fail with ErrServiceClosed.
func (s *VisitorService) Close() {
	s.mu.Lock()
	s.closed = true
	engines := make([]*engine.Engine, 0, len(s.visitors))
	for _, entry := range s.visitors {
		engines = append(engines, entry.engine)
	}
	s.visitors = make(map[string]*visitorEntry)
	s.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}

// IssueMarker signs the verified-email marker cookie value.
func (s *VisitorService) IssueMarker(address string, verifiedAt time.Time) (string, error) {
	if s.cfg.MarkerSecret == "" {
		return "", ErrVerificationUnavailable
	}
	return security.GenerateMarkerToken(address, verifiedAt, s.cfg.MarkerTTL, s.cfg.MarkerSecret)
}

// MarkerTTL is the lifetime of the marker cookie.
func (s *VisitorService) MarkerTTL() time.Duration { return s.cfg.MarkerTTL }

// SubmitCode redeems a code on behalf of a visitor. The active prompt
// stays open and pending until the server answers; only a verified
// outcome touches gate state.
func (s *VisitorService) SubmitCode(ctx context.Context, visitorID, address, code string) (*SubmissionResult, error) {
	marker := s.perfTracker.StartOperation("submit_code", visitorID)
	defer marker.Complete()

	eng, err := s.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if s.cfg.MarkerSecret == "" || s.verifier == nil {
		return &SubmissionResult{Verification: unavailable()}, nil
	}

	eng.BeginSubmission()
	res := s.verifier.VerifyCode(ctx, address, code)
	if !res.Success {
		eng.FailSubmission()
		marker.SetSuccess(false)
		return &SubmissionResult{Verification: res}, nil
	}
	return s.confirm(eng, res), nil
}

// RedeemMagicLink redeems a magic link token on behalf of a visitor.
func (s *VisitorService) RedeemMagicLink(ctx context.Context, visitorID, token string) (*SubmissionResult, error) {
	marker := s.perfTracker.StartOperation("redeem_magic_link", visitorID)
	defer marker.Complete()

	eng, err := s.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if s.cfg.MarkerSecret == "" || s.verifier == nil {
		return &SubmissionResult{Verification: unavailable()}, nil
	}

	res := s.verifier.VerifyMagicLink(ctx, token)
	if !res.Success {
		marker.SetSuccess(false)
		return &SubmissionResult{Verification: res}, nil
	}
	return s.confirm(eng, res), nil
}

func (s *VisitorService) confirm(eng *engine.Engine, res *VerificationResult) *SubmissionResult {
	snap := eng.ConfirmEmail(res.Email)
	out := &SubmissionResult{Verification: res, State: &snap}

	verifiedAt := s.clock.Now()
	if res.VerifiedAt != nil {
		verifiedAt = *res.VerifiedAt
	}
	token, err := s.IssueMarker(res.Email, verifiedAt)
	if err != nil {
		s.logger.WithVisitor(logging.ChannelVerification, eng.VisitorID()).Error("Failed to sign verified email marker", "error", err.Error())
		return out
	}
	out.MarkerToken = token
	return out
}

// Reconcile aligns a visitor's gate state with the system of record at
// page load. The marker cookie only names an address; the address must
// also be verified server-side. A stored email that cannot be
// corroborated is revoked. Store faults leave state untouched.
func (s *VisitorService) Reconcile(ctx context.Context, visitorID string, in ReconcileInput) (*ReconcileResult, error) {
	marker := s.perfTracker.StartOperation("reconcile", visitorID)
	defer marker.Complete()

	eng, err := s.Engine(visitorID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	res := &ReconcileResult{Toast: in.Toast, Synced: in.Sync != ""}
	log := s.logger.WithVisitor(logging.ChannelVerification, visitorID)

	if s.cfg.MarkerSecret == "" || s.verifier == nil {
		res.State = eng.Snapshot()
		return res, nil
	}

	claimed := ""
	if in.MarkerToken != "" {
		claims, err := security.ValidateMarkerToken(in.MarkerToken, s.cfg.MarkerSecret)
		if err != nil {
			log.Warn("Rejected verified email marker", "error", err.Error())
			res.ClearMarker = true
		} else {
			claimed = claims.Email
		}
	}

	current := eng.Snapshot()
	if claimed == "" && current.Gate.HasEmail && current.Gate.UserEmail != nil {
		claimed = *current.Gate.UserEmail
	}

	switch {
	case claimed != "":
		lookup, err := s.verifier.LookupEmailStatus(ctx, claimed)
		if err != nil {
			log.Warn("Reconciliation skipped, system of record unavailable", "error", err.Error())
			res.State = current
			return res, nil
		}
		if lookup.Verified {
			res.Verified = true
			res.Changed = eng.SyncEmail(lookup.Email, true)
		} else {
			res.Revoked = current.Gate.HasEmail
			res.Changed = eng.RevokeEmail()
			res.ClearMarker = in.MarkerToken != ""
		}
	case current.Gate.HasEmail:
		res.Revoked = true
		res.Changed = eng.RevokeEmail()
	}

	res.State = eng.Snapshot()
	return res, nil
}
