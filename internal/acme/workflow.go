package acme

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/dns"
	"github.com/OwenRay/rms-dns/internal/store"
)

var (
	// ErrNoDNSChallenge is returned when the authority offers no dns-01
	// challenge for the managed hostname.
	ErrNoDNSChallenge = errors.New("no dns-01 challenge offered")

	// ErrChallengeTimeout is returned when the challenge does not reach a
	// valid status within the configured bound.
	ErrChallengeTimeout = errors.New("challenge validation timed out")

	// ErrNoCertificate is returned when no unexpired certificate material
	// is available for the listener.
	ErrNoCertificate = errors.New("no valid certificate material")
)

// WorkflowConfig holds the issuance parameters for the managed hostname.
type WorkflowConfig struct {
	Subdomain        string // the listener's own certification subdomain
	ParentZone       string
	OperatorIP       string // A record value published alongside the challenge
	ContactEmail     string
	ChallengeTimeout time.Duration
	Validity         time.Duration // stored lifetime of issued material
}

// Domain returns the managed hostname the workflow certifies.
func (c WorkflowConfig) Domain() string {
	return c.Subdomain + "." + c.ParentZone
}

// Workflow drives one certificate issuance against the authority: account
// setup, order, dns-01 challenge via the record publisher, finalization,
// and persistence of the resulting material. Runs are serialized; session
// state (order, authorization, challenge handles) lives only in the run.
type Workflow struct {
	mu        sync.Mutex
	store     *store.Store
	publisher *dns.Publisher
	authority Authority
	cfg       WorkflowConfig
	logger    *logrus.Entry
}

// NewWorkflow creates a Workflow.
func NewWorkflow(s *store.Store, publisher *dns.Publisher, authority Authority, cfg WorkflowConfig, logger *logrus.Entry) *Workflow {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 2 * time.Minute
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 30 * 24 * time.Hour
	}
	return &Workflow{
		store:     s,
		publisher: publisher,
		authority: authority,
		cfg:       cfg,
		logger:    logger.WithField("component", "acme-workflow"),
	}
}

// EnsureCertificate runs a full issuance unless the stored material is
// still valid. A run that fails leaves the previous material untouched.
func (w *Workflow) EnsureCertificate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Issue only when material is absent or expired.
	if m, ok := w.store.Certificate(); ok && m.ExpiresAt.After(time.Now()) {
		w.logger.WithField("expires_at", m.ExpiresAt).Debug("certificate still valid, skipping issuance")
		return nil
	}

	domain := w.cfg.Domain()
	w.logger.WithField("domain", domain).Info("starting certificate issuance")

	if err := w.authority.Register(ctx, w.cfg.ContactEmail); err != nil {
		return fmt.Errorf("account setup failed: %w", err)
	}

	order, err := w.authority.CreateOrder(ctx, domain)
	if err != nil {
		return fmt.Errorf("order creation failed: %w", err)
	}
	if len(order.AuthzURLs) == 0 {
		return fmt.Errorf("order for %s carries no authorizations", domain)
	}

	authz, err := w.authority.Authorization(ctx, order.AuthzURLs[0])
	if err != nil {
		return fmt.Errorf("authorization fetch failed: %w", err)
	}

	challenge, ok := selectDNSChallenge(authz)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoDNSChallenge, domain)
	}

	txtValue, err := w.authority.TXTRecord(challenge)
	if err != nil {
		return fmt.Errorf("key authorization failed: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.cfg.Subdomain, w.cfg.OperatorIP, txtValue); err != nil {
		return fmt.Errorf("challenge record publication failed: %w", err)
	}

	// Self-verification failure is tolerated: the authority validates on
	// its own schedule and DNS propagation is eventual.
	if err := w.authority.Verify(ctx, dns.ChallengeName(domain), txtValue); err != nil {
		w.logger.WithError(err).Warn("could not verify challenge record, trying anyway")
	}

	if err := w.completeChallenge(ctx, challenge, authz.URI); err != nil {
		return err
	}

	keyPEM, certPEM, err := w.authority.Finalize(ctx, order, domain)
	if err != nil {
		return fmt.Errorf("finalization failed: %w", err)
	}

	material := store.Material{
		KeyPEM:    keyPEM,
		CertPEM:   certPEM,
		ExpiresAt: time.Now().Add(w.cfg.Validity),
	}
	if err := w.store.SetCertificate(material); err != nil {
		return fmt.Errorf("failed to persist certificate: %w", err)
	}

	w.logger.WithField("expires_at", material.ExpiresAt).Info("certificate issued")
	return nil
}

// completeChallenge accepts the challenge and waits for a valid terminal
// status, bounded by the configured challenge timeout.
func (w *Workflow) completeChallenge(ctx context.Context, challenge Challenge, authzURL string) error {
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ChallengeTimeout)
	defer cancel()

	if err := w.authority.Accept(waitCtx, challenge); err != nil {
		return fmt.Errorf("challenge completion failed: %w", err)
	}

	if err := w.authority.WaitAuthorization(waitCtx, authzURL); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrChallengeTimeout, w.cfg.ChallengeTimeout)
		}
		return fmt.Errorf("challenge did not validate: %w", err)
	}
	return nil
}

func selectDNSChallenge(authz *Authorization) (Challenge, bool) {
	for _, chal := range authz.Challenges {
		if chal.Type == challengeTypeDNS01 {
			return chal, true
		}
	}
	return Challenge{}, false
}
