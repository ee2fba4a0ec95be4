package route53

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/route53"

	"github.com/OwenRay/rms-dns/internal/dns"
)

// Provider implements dns.Provider on top of the Route53 API. A batch maps
// to a single ChangeResourceRecordSets call with UPSERT changes, which
// Route53 applies atomically.
type Provider struct {
	api *route53.Route53
}

// New creates a Route53 provider using the default AWS credential chain
// (environment, shared credentials file, instance role).
func New() (*Provider, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &Provider{api: route53.New(sess)}, nil
}

// UpsertBatch applies all records as one atomic change batch.
func (p *Provider) UpsertBatch(ctx context.Context, zoneID string, records []dns.Record) error {
	changes := make([]*route53.Change, 0, len(records))
	for _, r := range records {
		changes = append(changes, &route53.Change{
			Action: aws.String(route53.ChangeActionUpsert),
			ResourceRecordSet: &route53.ResourceRecordSet{
				Name: aws.String(r.Name),
				Type: aws.String(r.Type),
				TTL:  aws.Int64(r.TTL),
				ResourceRecords: []*route53.ResourceRecord{
					{Value: aws.String(r.Value)},
				},
			},
		})
	}

	input := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Changes: changes,
			Comment: aws.String("rms-dns record upsert"),
		},
	}

	if _, err := p.api.ChangeResourceRecordSetsWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to change record sets in zone %s: %w", zoneID, err)
	}
	return nil
}
