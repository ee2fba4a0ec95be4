package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/acme"
	"github.com/OwenRay/rms-dns/internal/store"
)

// Server assembles the HTTPS listener around the certificate lifecycle:
// it refuses to start without unexpired material, and picks renewed
// material up per handshake without a restart.
type Server struct {
	addr     string
	store    *store.Store
	workflow *acme.Workflow
	handler  http.Handler
	logger   *logrus.Entry

	// cached parsed keypair, keyed by the material's expiry
	certMu     sync.Mutex
	cachedCert *tls.Certificate
	cachedExp  time.Time
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, s *store.Store, workflow *acme.Workflow, handler http.Handler, logger *logrus.Entry) *Server {
	return &Server{
		addr:     addr,
		store:    s,
		workflow: workflow,
		handler:  handler,
		logger:   logger.WithField("component", "server"),
	}
}

// Run ensures valid certificate material, then serves HTTPS until ctx is
// canceled. An issuance failure is fatal only when no usable material
// remains from a previous run.
func (s *Server) Run(ctx context.Context) error {
	if err := s.workflow.EnsureCertificate(ctx); err != nil {
		if _, ok := s.validMaterial(); !ok {
			return fmt.Errorf("issuance failed and %w: %v", acme.ErrNoCertificate, err)
		}
		s.logger.WithError(err).Warn("issuance failed, serving with existing certificate")
	}

	if _, ok := s.validMaterial(); !ok {
		return acme.ErrNoCertificate
	}

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.handler,
		TLSConfig: &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: s.getCertificate,
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("addr", s.addr).Info("listening")
	err := srv.ListenAndServeTLS("", "")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) validMaterial() (store.Material, bool) {
	m, ok := s.store.Certificate()
	if !ok || !m.ExpiresAt.After(time.Now()) {
		return store.Material{}, false
	}
	return m, true
}

// getCertificate serves the current store material, reparsing only when a
// renewal has replaced it.
func (s *Server) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	m, ok := s.validMaterial()
	if !ok {
		return nil, acme.ErrNoCertificate
	}

	s.certMu.Lock()
	defer s.certMu.Unlock()

	if s.cachedCert != nil && s.cachedExp.Equal(m.ExpiresAt) {
		return s.cachedCert, nil
	}

	cert, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate material: %w", err)
	}

	s.cachedCert = &cert
	s.cachedExp = m.ExpiresAt
	return s.cachedCert, nil
}
