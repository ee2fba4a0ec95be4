package dns

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// challengeNode is the node under which DNS-01 challenge values live.
const challengeNode = "_acme-challenge"

// ChallengeName returns the TXT record name carrying the DNS-01 challenge
// value for fqdn.
func ChallengeName(fqdn string) string {
	return challengeNode + "." + fqdn
}

// Record TTLs, in seconds. The A record outlives the challenge record.
const (
	aRecordTTL   = 60
	txtRecordTTL = 30
)

// PublisherConfig holds the fixed zone parameters and the error policy.
type PublisherConfig struct {
	ParentZone   string // e.g. "theremote.io"
	HostedZoneID string
	// Strict surfaces provider errors to the caller. When false (the
	// default), publishing is fire-and-forget: failures are logged and
	// swallowed, since record visibility is eventual anyway.
	Strict  bool
	Timeout time.Duration
}

// Publisher upserts the record pair for a claimed subdomain: an A record
// binding the name to an IP, and the TXT record carrying the ACME
// challenge value. Both go to the provider as one atomic batch.
type Publisher struct {
	provider Provider
	cfg      PublisherConfig
	logger   *logrus.Entry
}

// NewPublisher creates a Publisher over the given provider.
func NewPublisher(provider Provider, cfg PublisherConfig, logger *logrus.Entry) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Publisher{
		provider: provider,
		cfg:      cfg,
		logger:   logger.WithField("component", "dns-publisher"),
	}
}

// Publish upserts the A and TXT records for subdomain under the parent
// zone. ip and challengeToken are opaque strings; the TXT value is wrapped
// in literal quotes as the provider expects. In non-strict mode the
// returned error is always nil.
func (p *Publisher) Publish(ctx context.Context, subdomain, ip, challengeToken string) error {
	records := []Record{
		{
			Name:  fmt.Sprintf("%s.%s", subdomain, p.cfg.ParentZone),
			Type:  TypeA,
			Value: ip,
			TTL:   aRecordTTL,
		},
		{
			Name:  ChallengeName(fmt.Sprintf("%s.%s", subdomain, p.cfg.ParentZone)),
			Type:  TypeTXT,
			Value: `"` + challengeToken + `"`,
			TTL:   txtRecordTTL,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.provider.UpsertBatch(ctx, p.cfg.HostedZoneID, records); err != nil {
		if p.cfg.Strict {
			return fmt.Errorf("failed to upsert records for %s: %w", subdomain, err)
		}
		p.logger.WithError(err).Warnf("record upsert for %s failed, continuing", subdomain)
	}

	return nil
}
