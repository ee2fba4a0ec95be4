package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"net"

	xacme "golang.org/x/crypto/acme"
)

// LetsEncryptDirectory is the default production directory URL.
const LetsEncryptDirectory = "https://acme-v02.api.letsencrypt.org/directory"

// directoryClient implements Authority against an RFC 8555 directory using
// golang.org/x/crypto/acme. Register creates the underlying client with a
// freshly generated account key, so each issuance run gets its own account.
type directoryClient struct {
	directoryURL string
	client       *xacme.Client
	resolver     *net.Resolver
}

// NewDirectoryClient creates an Authority for the given directory URL.
func NewDirectoryClient(directoryURL string) Authority {
	return &directoryClient{
		directoryURL: directoryURL,
		resolver:     net.DefaultResolver,
	}
}

func (c *directoryClient) Register(ctx context.Context, contactEmail string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate account key: %w", err)
	}

	c.client = &xacme.Client{
		Key:          key,
		DirectoryURL: c.directoryURL,
	}

	account := &xacme.Account{Contact: []string{"mailto:" + contactEmail}}
	if _, err := c.client.Register(ctx, account, xacme.AcceptTOS); err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

func (c *directoryClient) CreateOrder(ctx context.Context, domain string) (*Order, error) {
	if c.client == nil {
		return nil, errors.New("no account registered")
	}

	order, err := c.client.AuthorizeOrder(ctx, xacme.DomainIDs(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &Order{
		URI:         order.URI,
		AuthzURLs:   order.AuthzURLs,
		FinalizeURL: order.FinalizeURL,
	}, nil
}

func (c *directoryClient) Authorization(ctx context.Context, url string) (*Authorization, error) {
	authz, err := c.client.GetAuthorization(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authorization: %w", err)
	}

	result := &Authorization{URI: authz.URI}
	for _, chal := range authz.Challenges {
		result.Challenges = append(result.Challenges, Challenge{
			Type:  chal.Type,
			URI:   chal.URI,
			Token: chal.Token,
		})
	}
	return result, nil
}

func (c *directoryClient) TXTRecord(challenge Challenge) (string, error) {
	value, err := c.client.DNS01ChallengeRecord(challenge.Token)
	if err != nil {
		return "", fmt.Errorf("failed to compute key authorization: %w", err)
	}
	return value, nil
}

// Verify looks the TXT record up through the local resolver. Propagation
// is eventual, so a miss here is not proof the authority will fail.
func (c *directoryClient) Verify(ctx context.Context, recordName, txtValue string) error {
	values, err := c.resolver.LookupTXT(ctx, recordName)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", recordName, err)
	}
	for _, v := range values {
		if v == txtValue {
			return nil
		}
	}
	return fmt.Errorf("record %s does not carry the challenge value yet", recordName)
}

func (c *directoryClient) Accept(ctx context.Context, challenge Challenge) error {
	_, err := c.client.Accept(ctx, &xacme.Challenge{
		Type:  challenge.Type,
		URI:   challenge.URI,
		Token: challenge.Token,
	})
	if err != nil {
		return fmt.Errorf("failed to accept challenge: %w", err)
	}
	return nil
}

func (c *directoryClient) WaitAuthorization(ctx context.Context, url string) error {
	if _, err := c.client.WaitAuthorization(ctx, url); err != nil {
		return err
	}
	return nil
}

func (c *directoryClient) Finalize(ctx context.Context, order *Order, domain string) ([]byte, []byte, error) {
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate certificate key: %w", err)
	}

	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domain},
		DNSNames: []string{domain},
	}, certKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	// The order must be ready before finalization.
	ready, err := c.client.WaitOrder(ctx, order.URI)
	if err != nil {
		return nil, nil, fmt.Errorf("order did not become ready: %w", err)
	}

	chain, _, err := c.client.CreateOrderCert(ctx, ready.FinalizeURL, csr, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to finalize order: %w", err)
	}

	keyPEM, err := encodePrivateKey(certKey)
	if err != nil {
		return nil, nil, err
	}
	return keyPEM, encodeCertChain(chain), nil
}

func encodePrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: keyBytes,
	}), nil
}

func encodeCertChain(chain [][]byte) []byte {
	var out []byte
	for _, der := range chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: der,
		})...)
	}
	return out
}
