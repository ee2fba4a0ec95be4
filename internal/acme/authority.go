package acme

import "context"

// Order is the handle for one certificate order.
type Order struct {
	URI         string
	AuthzURLs   []string
	FinalizeURL string
}

// Authorization is the handle for one identifier authorization, with the
// challenge variants the authority offers.
type Authorization struct {
	URI        string
	Challenges []Challenge
}

// Challenge is one offered challenge variant.
type Challenge struct {
	Type  string // e.g. "dns-01"
	URI   string
	Token string
}

// challengeTypeDNS01 is the challenge variant this service can satisfy.
const challengeTypeDNS01 = "dns-01"

// Authority is the certificate-authority capability the issuance workflow
// drives. Implementations talk ACME; the workflow only sequences the steps.
type Authority interface {
	// Register sets up an account under a fresh key, agreeing to the
	// authority's terms of service with the given contact address.
	Register(ctx context.Context, contactEmail string) error

	// CreateOrder places an order for a single DNS identifier.
	CreateOrder(ctx context.Context, domain string) (*Order, error)

	// Authorization fetches an authorization by URL.
	Authorization(ctx context.Context, url string) (*Authorization, error)

	// TXTRecord computes the DNS TXT value (key authorization digest)
	// satisfying the given challenge.
	TXTRecord(challenge Challenge) (string, error)

	// Verify self-checks that the challenge record is visible, before the
	// authority is asked to validate. Callers may tolerate failure.
	Verify(ctx context.Context, recordName, txtValue string) error

	// Accept notifies the authority that the challenge is satisfied.
	Accept(ctx context.Context, challenge Challenge) error

	// WaitAuthorization blocks until the authorization reaches a valid
	// terminal status, or ctx expires.
	WaitAuthorization(ctx context.Context, url string) error

	// Finalize generates a key pair and CSR for domain, finalizes the
	// order and retrieves the issued chain, both PEM encoded.
	Finalize(ctx context.Context, order *Order, domain string) (keyPEM, certPEM []byte, err error)
}
