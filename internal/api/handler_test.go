package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/dns"
	"github.com/OwenRay/rms-dns/internal/registry"
	"github.com/OwenRay/rms-dns/internal/store"
)

type recordingProvider struct {
	batches [][]dns.Record
}

func (p *recordingProvider) UpsertBatch(ctx context.Context, zoneID string, records []dns.Record) error {
	p.batches = append(p.batches, records)
	return nil
}

func testEngine(t *testing.T) (*gin.Engine, *recordingProvider) {
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

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(registry.New(s), publisher, testLogger()).RegisterRoutes(engine)
	return engine, provider
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func get(t *testing.T, engine *gin.Engine, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRegister_Scenario(t *testing.T) {
	engine, provider := testEngine(t)

	// Claim alice
	rec := get(t, engine, "/?name=alice&password=pw1&ip=1.2.3.4&token=tok1")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("Claim = %d %q; want 200 ok", rec.Code, rec.Body.String())
	}

	// The claim published one A+TXT batch
	if len(provider.batches) != 1 {
		t.Fatalf("Expected 1 published batch, got %d", len(provider.batches))
	}
	batch := provider.batches[0]
	if batch[0].Name != "alice.example.io" || batch[0].Value != "1.2.3.4" {
		t.Errorf("Unexpected A record %+v", batch[0])
	}
	if batch[1].Name != "_acme-challenge.alice.example.io" || batch[1].Value != `"tok1"` {
		t.Errorf("Unexpected TXT record %+v", batch[1])
	}

	// Availability check on a taken name: 200, not 403
	rec = get(t, engine, "/?name=alice")
	if rec.Code != http.StatusOK || rec.Body.String() != "name not available" {
		t.Errorf("Availability = %d %q; want 200 name not available", rec.Code, rec.Body.String())
	}

	// Wrong password
	rec = get(t, engine, "/?name=alice&password=wrongpw&ip=1.2.3.4&token=tok2")
	if rec.Code != http.StatusForbidden || rec.Body.String() != "err" {
		t.Errorf("Bad credential = %d %q; want 403 err", rec.Code, rec.Body.String())
	}

	// Restricted name: 403 even without a password
	rec = get(t, engine, "/?name=www")
	if rec.Code != http.StatusForbidden || rec.Body.String() != "name not available" {
		t.Errorf("Restricted = %d %q; want 403 name not available", rec.Code, rec.Body.String())
	}
}

func TestRegister_AvailabilityOfFreeName(t *testing.T) {
	engine, _ := testEngine(t)

	rec := get(t, engine, "/?name=bob")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Free name = %d %q; want 200 ok", rec.Code, rec.Body.String())
	}
}

func TestRegister_NoParams(t *testing.T) {
	engine, provider := testEngine(t)

	rec := get(t, engine, "/")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("No params = %d %q; want 200 ok", rec.Code, rec.Body.String())
	}
	if len(provider.batches) != 0 {
		t.Error("No params must not publish records")
	}
}

func TestRegister_InvalidNameFormatDoesNotClaim(t *testing.T) {
	engine, provider := testEngine(t)

	// Fails the lowercase check, so it falls through to the availability
	// branch and nothing is stored or published.
	rec := get(t, engine, "/?name=Alice&password=pw1&ip=1.2.3.4&token=tok1")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Invalid format = %d %q; want 200 ok", rec.Code, rec.Body.String())
	}
	if len(provider.batches) != 0 {
		t.Error("Invalid name must not publish records")
	}
}

func TestRegister_ReclaimIsIdempotent(t *testing.T) {
	engine, provider := testEngine(t)

	for i := 0; i < 2; i++ {
		rec := get(t, engine, "/?name=alice&password=pw1&ip=1.2.3.4&token=tok1")
		if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Fatalf("Claim #%d = %d %q; want 200 ok", i+1, rec.Code, rec.Body.String())
		}
	}

	// Records are (re)published on every successful claim
	if len(provider.batches) != 2 {
		t.Errorf("Expected 2 published batches, got %d", len(provider.batches))
	}
}
