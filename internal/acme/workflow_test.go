package acme

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/dns"
	"github.com/OwenRay/rms-dns/internal/store"
)

// stubAuthority scripts the certificate-authority side of a run and
// records the order of calls.
type stubAuthority struct {
	calls []string

	challenges []Challenge
	verifyErr  error
	acceptErr  error
	waitBlocks bool
}

func newStubAuthority() *stubAuthority {
	return &stubAuthority{
		challenges: []Challenge{
			{Type: "http-01", URI: "chal/http", Token: "th"},
			{Type: "dns-01", URI: "chal/dns", Token: "td"},
		},
	}
}

func (a *stubAuthority) Register(ctx context.Context, contactEmail string) error {
	a.calls = append(a.calls, "register")
	return nil
}

func (a *stubAuthority) CreateOrder(ctx context.Context, domain string) (*Order, error) {
	a.calls = append(a.calls, "order")
	return &Order{URI: "order/1", AuthzURLs: []string{"authz/1"}, FinalizeURL: "order/1/finalize"}, nil
}

func (a *stubAuthority) Authorization(ctx context.Context, url string) (*Authorization, error) {
	a.calls = append(a.calls, "authorization")
	return &Authorization{URI: url, Challenges: a.challenges}, nil
}

func (a *stubAuthority) TXTRecord(challenge Challenge) (string, error) {
	a.calls = append(a.calls, "txtrecord")
	return "keyauth-" + challenge.Token, nil
}

func (a *stubAuthority) Verify(ctx context.Context, recordName, txtValue string) error {
	a.calls = append(a.calls, "verify")
	return a.verifyErr
}

func (a *stubAuthority) Accept(ctx context.Context, challenge Challenge) error {
	a.calls = append(a.calls, "accept")
	return a.acceptErr
}

func (a *stubAuthority) WaitAuthorization(ctx context.Context, url string) error {
	a.calls = append(a.calls, "wait")
	if a.waitBlocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (a *stubAuthority) Finalize(ctx context.Context, order *Order, domain string) ([]byte, []byte, error) {
	a.calls = append(a.calls, "finalize")
	return []byte("key-pem"), []byte("cert-pem"), nil
}

type recordingProvider struct {
	batches [][]dns.Record
}

func (p *recordingProvider) UpsertBatch(ctx context.Context, zoneID string, records []dns.Record) error {
	p.batches = append(p.batches, records)
	return nil
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func testWorkflow(t *testing.T, authority Authority) (*Workflow, *store.Store, *recordingProvider) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}

	provider := &recordingProvider{}
	publisher := dns.NewPublisher(provider, dns.PublisherConfig{
		ParentZone:   "example.io",
		HostedZoneID: "ZONE123",
	}, testLogger())

	workflow := NewWorkflow(s, publisher, authority, WorkflowConfig{
		Subdomain:        "certification",
		ParentZone:       "example.io",
		OperatorIP:       "198.51.100.7",
		ContactEmail:     "ops@example.io",
		ChallengeTimeout: time.Second,
		Validity:         30 * 24 * time.Hour,
	}, testLogger())

	return workflow, s, provider
}

func TestEnsureCertificate_SkipsWhenValid(t *testing.T) {
	authority := newStubAuthority()
	workflow, s, _ := testWorkflow(t, authority)

	err := s.SetCertificate(store.Material{
		KeyPEM:    []byte("k"),
		CertPEM:   []byte("c"),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SetCertificate() failed: %v", err)
	}

	if err := workflow.EnsureCertificate(context.Background()); err != nil {
		t.Fatalf("EnsureCertificate() failed: %v", err)
	}

	if len(authority.calls) != 0 {
		t.Errorf("Valid material must be a no-op, but authority saw %v", authority.calls)
	}
}

func TestEnsureCertificate_IssuesWhenAbsent(t *testing.T) {
	authority := newStubAuthority()
	workflow, s, provider := testWorkflow(t, authority)

	before := time.Now()
	if err := workflow.EnsureCertificate(context.Background()); err != nil {
		t.Fatalf("EnsureCertificate() failed: %v", err)
	}

	want := []string{"register", "order", "authorization", "txtrecord", "verify", "accept", "wait", "finalize"}
	if len(authority.calls) != len(want) {
		t.Fatalf("Call sequence = %v; want %v", authority.calls, want)
	}
	for i, call := range want {
		if authority.calls[i] != call {
			t.Fatalf("Call sequence = %v; want %v", authority.calls, want)
		}
	}

	// The challenge record was published before the authority was asked
	if len(provider.batches) != 1 {
		t.Fatalf("Expected 1 published batch, got %d", len(provider.batches))
	}
	txt := provider.batches[0][1]
	if txt.Name != "_acme-challenge.certification.example.io" {
		t.Errorf("Unexpected TXT name %s", txt.Name)
	}
	if txt.Value != `"keyauth-td"` {
		t.Errorf("TXT value should carry the dns-01 key authorization, got %s", txt.Value)
	}

	m, ok := s.Certificate()
	if !ok {
		t.Fatal("Expected persisted material")
	}
	if string(m.KeyPEM) != "key-pem" || string(m.CertPEM) != "cert-pem" {
		t.Errorf("Unexpected material: %+v", m)
	}
	if m.ExpiresAt.Before(before.Add(29*24*time.Hour)) || m.ExpiresAt.After(before.Add(31*24*time.Hour)) {
		t.Errorf("ExpiresAt = %v; want ~30 days out", m.ExpiresAt)
	}
}

func TestEnsureCertificate_IssuesWhenExpired(t *testing.T) {
	authority := newStubAuthority()
	workflow, s, _ := testWorkflow(t, authority)

	err := s.SetCertificate(store.Material{
		KeyPEM:    []byte("old-key"),
		CertPEM:   []byte("old-cert"),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("SetCertificate() failed: %v", err)
	}

	if err := workflow.EnsureCertificate(context.Background()); err != nil {
		t.Fatalf("EnsureCertificate() failed: %v", err)
	}

	m, _ := s.Certificate()
	if string(m.KeyPEM) != "key-pem" {
		t.Error("Expired material should be replaced by a fresh issuance")
	}
}

func TestEnsureCertificate_VerifyFailureTolerated(t *testing.T) {
	authority := newStubAuthority()
	authority.verifyErr = errors.New("propagation pending")
	workflow, s, _ := testWorkflow(t, authority)

	if err := workflow.EnsureCertificate(context.Background()); err != nil {
		t.Fatalf("Verification failure must be tolerated, got %v", err)
	}

	if _, ok := s.Certificate(); !ok {
		t.Error("Run should complete despite failed self-verification")
	}
}

func TestEnsureCertificate_NoDNSChallenge(t *testing.T) {
	authority := newStubAuthority()
	authority.challenges = []Challenge{{Type: "http-01", URI: "chal/http", Token: "th"}}
	workflow, s, _ := testWorkflow(t, authority)

	err := workflow.EnsureCertificate(context.Background())
	if !errors.Is(err, ErrNoDNSChallenge) {
		t.Fatalf("EnsureCertificate() = %v; want ErrNoDNSChallenge", err)
	}

	if _, ok := s.Certificate(); ok {
		t.Error("Failed run must not persist material")
	}
}

func TestEnsureCertificate_ChallengeTimeout(t *testing.T) {
	authority := newStubAuthority()
	authority.waitBlocks = true
	workflow, s, _ := testWorkflow(t, authority)
	workflow.cfg.ChallengeTimeout = 50 * time.Millisecond

	err := workflow.EnsureCertificate(context.Background())
	if !errors.Is(err, ErrChallengeTimeout) {
		t.Fatalf("EnsureCertificate() = %v; want ErrChallengeTimeout", err)
	}

	if _, ok := s.Certificate(); ok {
		t.Error("Timed-out run must not persist material")
	}
}

func TestEnsureCertificate_AcceptFailureFatal(t *testing.T) {
	authority := newStubAuthority()
	authority.acceptErr = errors.New("rejected")
	workflow, s, _ := testWorkflow(t, authority)

	if err := workflow.EnsureCertificate(context.Background()); err == nil {
		t.Fatal("Completion failure should be fatal to the run")
	}

	if _, ok := s.Certificate(); ok {
		t.Error("Failed run must not persist material")
	}
}
