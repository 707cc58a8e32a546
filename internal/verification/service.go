package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/guildgate/guildgate/internal/challenge"
	"github.com/guildgate/guildgate/internal/ledger"
	"github.com/guildgate/guildgate/internal/notification"
	"github.com/guildgate/guildgate/internal/pending"
	"github.com/guildgate/guildgate/internal/roles"
	"github.com/guildgate/guildgate/internal/session"
)

var (
	// ErrSessionExpired means the session is absent or past its TTL; the
	// requester must restart verification.
	ErrSessionExpired = errors.New("verification session expired")

	// ErrChallengeFailed means the submitted answer was wrong. The session
	// is gone; the requester must restart.
	ErrChallengeFailed = errors.New("challenge answer incorrect")

	// ErrIdentityMismatch means the completing identity is not the account
	// that started the session. Security-relevant; no grant happens.
	ErrIdentityMismatch = errors.New("proven identity does not match requester")

	// ErrGrantFailed means the privilege sink errored after a correct
	// answer or proof. Never retried automatically: without an idempotency
	// key a retry could grant twice on a partial failure.
	ErrGrantFailed = errors.New("privilege grant failed")

	// ErrAlreadyVerified short-circuits a start request for an account the
	// ledger already holds.
	ErrAlreadyVerified = errors.New("account already verified")

	// ErrProofPending means reconciliation was requested before the
	// external channel reported completion.
	ErrProofPending = errors.New("identity proof not completed")
)

// StartInput identifies the requester opening a verification session.
type StartInput struct {
	RequesterID string
	GuildID     string
	Label       string
}

// IssuedChallenge is the requester-facing view of a fresh challenge
// session. The correct answer stays server-side.
type IssuedChallenge struct {
	Question  string
	Options   []int
	ExpiresAt time.Time
}

// ProofTicket points the requester at the identity authority.
type ProofTicket struct {
	State           string
	VerificationURL string
	ExpiresAt       time.Time
}

// Service is the correlation engine: it issues sessions, matches
// completion events back to them, and triggers the privilege grant at
// most once per session.
type Service struct {
	sessions session.Store
	pendings pending.Registry
	granter  roles.Granter
	records  ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger

	baseURL      string
	challengeTTL time.Duration
	proofTTL     time.Duration
	pollInterval time.Duration
}

// Option tweaks service timing, mainly for tests.
type Option func(*Service)

// WithChallengeTTL overrides the challenge-session lifetime.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) { s.challengeTTL = ttl }
}

// WithProofTTL overrides the identity-proof lifetime and poll ceiling.
func WithProofTTL(ttl time.Duration) Option {
	return func(s *Service) { s.proofTTL = ttl }
}

// WithPollInterval overrides the completion poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) { s.pollInterval = interval }
}

// NewService wires the correlation engine. baseURL is the public root of
// the completion channel, used to mint verification links.
func NewService(sessions session.Store, pendings pending.Registry, granter roles.Granter, records ledger.Ledger, notifier notification.Notifier, logger *slog.Logger, baseURL string, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		pendings: pendings,
		granter:  granter,
		records:  records,
		notifier: notifier,
		logger:   logger,

		baseURL:      baseURL,
		challengeTTL: 60 * time.Second,
		proofTTL:     10 * time.Minute,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartChallenge opens a challenge-mode session for the requester. A
// session already in flight for the same requester is superseded. Already
// verified accounts are rejected without creating a session.
func (s *Service) StartChallenge(ctx context.Context, input StartInput) (IssuedChallenge, error) {
	if input.RequesterID == "" {
		return IssuedChallenge{}, fmt.Errorf("requester id is required")
	}
	if _, err := s.records.Find(ctx, input.RequesterID); err == nil {
		return IssuedChallenge{}, ErrAlreadyVerified
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return IssuedChallenge{}, fmt.Errorf("ledger lookup: %w", err)
	}

	ch := challenge.Generate()
	now := time.Now().UTC()
	sess := session.Session{
		Key:         input.RequesterID,
		RequesterID: input.RequesterID,
		GuildID:     input.GuildID,
		Label:       input.Label,
		Mode:        session.ModeChallenge,
		Answer:      ch.Answer,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.challengeTTL),
	}
	if err := s.sessions.Put(ctx, sess, s.challengeTTL); err != nil {
		return IssuedChallenge{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.Info("challenge session opened",
		slog.String("requester_id", input.RequesterID),
		slog.Time("expires_at", sess.ExpiresAt),
	)

	return IssuedChallenge{
		Question:  ch.Question,
		Options:   ch.Options,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// SubmitAnswer resolves a challenge-mode session. The session is consumed
// whatever the outcome: a wrong answer ends it, a correct answer grants
// the privilege, and a duplicate submission finds nothing left to consume.
func (s *Service) SubmitAnswer(ctx context.Context, requesterID string, answer int) (ledger.Record, error) {
	// Peek before consuming: an answer keyed by a proof-mode state token
	// must not destroy the in-flight proof session.
	sess, err := s.sessions.Get(ctx, requesterID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ledger.Record{}, ErrSessionExpired
		}
		return ledger.Record{}, fmt.Errorf("fetch session: %w", err)
	}
	if sess.Mode != session.ModeChallenge {
		return ledger.Record{}, ErrSessionExpired
	}

	sess, err = s.sessions.Consume(ctx, requesterID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ledger.Record{}, ErrSessionExpired
		}
		return ledger.Record{}, fmt.Errorf("consume session: %w", err)
	}
	if sess.Mode != session.ModeChallenge {
		return ledger.Record{}, ErrSessionExpired
	}

	if answer != sess.Answer {
		s.logger.Info("challenge failed",
			slog.String("requester_id", requesterID),
			slog.Int("submitted", answer),
		)
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindVerificationFailed,
				Destination: sess.RequesterID,
				Body:        fmt.Sprintf("challenge failed for account %s", sess.RequesterID),
			})
		}
		return ledger.Record{}, ErrChallengeFailed
	}

	rec, err := s.grantAndRecord(ctx, sess)
	if err != nil {
		// The session is already gone; the requester must contact an
		// operator rather than retry into a possible double grant.
		return ledger.Record{}, fmt.Errorf("%w: %v", ErrGrantFailed, err)
	}
	return rec, nil
}

// BeginIdentityProof opens an identity-proof session and starts the
// bounded poll loop watching for its completion.
func (s *Service) BeginIdentityProof(ctx context.Context, input StartInput) (ProofTicket, error) {
	if input.RequesterID == "" {
		return ProofTicket{}, fmt.Errorf("requester id is required")
	}
	if input.GuildID == "" {
		return ProofTicket{}, fmt.Errorf("guild id is required")
	}
	if _, err := s.records.Find(ctx, input.RequesterID); err == nil {
		return ProofTicket{}, ErrAlreadyVerified
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ProofTicket{}, fmt.Errorf("ledger lookup: %w", err)
	}

	pv, err := s.pendings.Create(ctx, input.RequesterID, input.GuildID, s.proofTTL)
	if err != nil {
		return ProofTicket{}, fmt.Errorf("create pending verification: %w", err)
	}

	now := time.Now().UTC()
	sess := session.Session{
		Key:         pv.State,
		RequesterID: input.RequesterID,
		GuildID:     input.GuildID,
		Label:       input.Label,
		Mode:        session.ModeProof,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.proofTTL),
	}
	if err := s.sessions.Put(ctx, sess, s.proofTTL); err != nil {
		_ = s.pendings.Delete(ctx, pv.State)
		return ProofTicket{}, fmt.Errorf("store session: %w", err)
	}

	watchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.proofTTL)
	go s.watchProof(watchCtx, cancel, pv.State)

	s.logger.Info("identity proof session opened",
		slog.String("requester_id", input.RequesterID),
		slog.String("state", pv.State),
		slog.Time("expires_at", sess.ExpiresAt),
	)

	return ProofTicket{
		State:           pv.State,
		VerificationURL: s.baseURL + "/verify?state=" + url.QueryEscape(pv.State),
		ExpiresAt:       sess.ExpiresAt,
	}, nil
}

// watchProof polls the pending registry until completion is observed, the
// record disappears, or the ceiling elapses. Whichever outcome fires first
// disposes the session so no second actor operates on it afterwards.
func (s *Service) watchProof(ctx context.Context, cancel context.CancelFunc, state string) {
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Ceiling reached without completion. Drop silently: the
			// original request context is long gone, there is nobody left
			// to tell.
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.sessions.Delete(cleanupCtx, state)
			_ = s.pendings.Delete(cleanupCtx, state)
			cleanupCancel()
			s.logger.Info("identity proof timed out", slog.String("state", state))
			return
		case <-ticker.C:
			pv, err := s.pendings.Status(ctx, state)
			if err != nil {
				if errors.Is(err, pending.ErrNotFound) {
					_ = s.sessions.Delete(ctx, state)
					return
				}
				// Transient registry failure; next tick retries.
				continue
			}
			if !pv.Completed {
				continue
			}
			err = s.Reconcile(ctx, state)
			switch {
			case err == nil, errors.Is(err, ErrSessionExpired):
				return
			case errors.Is(err, ErrIdentityMismatch), errors.Is(err, ErrGrantFailed):
				// Terminal: the session is consumed, nothing left to retry.
				// No user-visible channel remains on this path.
				s.logger.Error("reconcile after identity proof failed",
					slog.String("state", state),
					slog.Any("error", err),
				)
				return
			default:
				// Transient store failure; the session is still live and
				// the next tick retries.
				s.logger.Warn("reconcile attempt failed",
					slog.String("state", state),
					slog.Any("error", err),
				)
			}
		}
	}
}

// Reconcile matches a completed identity proof back to its session and
// grants the privilege at most once. It is safe to call from multiple
// producers racing on the same state: the session consume is the atomic
// gate, and the loser returns nil as a silent no-op.
func (s *Service) Reconcile(ctx context.Context, state string) error {
	pv, err := s.pendings.Status(ctx, state)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			return ErrSessionExpired
		}
		return fmt.Errorf("pending status: %w", err)
	}
	if !pv.Completed {
		return ErrProofPending
	}

	sess, err := s.sessions.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Duplicate completion signal: the other producer already won.
			return nil
		}
		// Store failure, not a lost race. The session is still live, so
		// the caller may retry.
		return fmt.Errorf("consume session: %w", err)
	}

	// The registry binds identity at proof time; re-check here so a
	// cross-wired record can never reach the grant.
	if pv.ProvenID != sess.RequesterID {
		_ = s.pendings.Delete(ctx, state)
		s.logger.Warn("identity mismatch at reconciliation",
			slog.String("state", state),
			slog.String("requester_id", sess.RequesterID),
		)
		return ErrIdentityMismatch
	}

	if _, err := s.grantAndRecord(ctx, sess); err != nil {
		_ = s.pendings.Delete(ctx, state)
		return fmt.Errorf("%w: %v", ErrGrantFailed, err)
	}
	_ = s.pendings.Delete(ctx, state)
	return nil
}

// Stats reports how many accounts the ledger holds.
func (s *Service) Stats(ctx context.Context) (int64, error) {
	return s.records.Count(ctx)
}

// grantAndRecord invokes the privilege sink and appends the ledger record.
// Both sink operations tolerate repeats, but the engine itself never
// retries a failure.
func (s *Service) grantAndRecord(ctx context.Context, sess session.Session) (ledger.Record, error) {
	if err := s.granter.Grant(ctx, sess.GuildID, sess.RequesterID); err != nil {
		s.logger.Error("role grant failed",
			slog.String("requester_id", sess.RequesterID),
			slog.String("guild_id", sess.GuildID),
			slog.Any("error", err),
		)
		return ledger.Record{}, err
	}

	rec, err := s.records.Record(ctx, sess.RequesterID, sess.Label)
	if err != nil {
		s.logger.Error("ledger record failed",
			slog.String("requester_id", sess.RequesterID),
			slog.Any("error", err),
		)
		return ledger.Record{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindVerificationGranted,
			Destination: sess.RequesterID,
			Body:        fmt.Sprintf("account %s verified in guild %s", sess.RequesterID, sess.GuildID),
		})
	}

	s.logger.Info("verification granted",
		slog.String("requester_id", sess.RequesterID),
		slog.String("mode", string(sess.Mode)),
	)
	return rec, nil
}
