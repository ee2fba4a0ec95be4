package dns

import "context"

// Record is one resource record in an upsert batch.
type Record struct {
	Name  string // fully qualified record name
	Type  string // "A" or "TXT"
	Value string
	TTL   int64 // seconds
}

// Record types used by the publisher.
const (
	TypeA   = "A"
	TypeTXT = "TXT"
)

// Provider is the DNS-provider capability. An implementation applies the
// whole batch as one atomic create-or-replace change against a zone.
type Provider interface {
	// UpsertBatch upserts all records in a single atomic change.
	UpsertBatch(ctx context.Context, zoneID string, records []Record) error
}
