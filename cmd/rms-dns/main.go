package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/OwenRay/rms-dns/internal/acme"
	"github.com/OwenRay/rms-dns/internal/api"
	"github.com/OwenRay/rms-dns/internal/bootstrap"
	"github.com/OwenRay/rms-dns/internal/config"
	"github.com/OwenRay/rms-dns/internal/dns"
	"github.com/OwenRay/rms-dns/internal/dns/providers/route53"
	"github.com/OwenRay/rms-dns/internal/registry"
	"github.com/OwenRay/rms-dns/internal/store"
)

func main() {
	configFile := flag.String("config", "", "path to INI config file (optional)")
	flag.Parse()

	// 1. Load configuration
	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFromINI(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	logger := logrus.NewEntry(logrus.StandardLogger())

	// 2. Open the durable state container
	st, err := store.Open(cfg.StateFile)
	if err != nil {
		log.Fatalf("Failed to open state file: %v", err)
	}
	log.Printf("✓ State loaded from %s (%d names)", cfg.StateFile, len(st.Names()))

	// 3. DNS publisher over Route53
	provider, err := route53.New()
	if err != nil {
		log.Fatalf("Failed to initialize Route53: %v", err)
	}
	publisher := dns.NewPublisher(provider, dns.PublisherConfig{
		ParentZone:   cfg.DNS.ParentZone,
		HostedZoneID: cfg.DNS.HostedZoneID,
		Strict:       cfg.DNS.Strict,
		Timeout:      time.Duration(cfg.DNS.TimeoutSec) * time.Second,
	}, logger)

	// 4. Name registry and registration endpoint
	reg := registry.New(st)
	gin.SetMode(gin.ReleaseMode)
	engine := gin.Default()
	api.NewHandler(reg, publisher, logger).RegisterRoutes(engine)

	// 5. Certificate issuance workflow
	authority := acme.NewDirectoryClient(cfg.ACME.DirectoryURL)
	workflow := acme.NewWorkflow(st, publisher, authority, acme.WorkflowConfig{
		Subdomain:        cfg.ACME.ManagedSubdomain,
		ParentZone:       cfg.DNS.ParentZone,
		OperatorIP:       cfg.ACME.OperatorIP,
		ContactEmail:     cfg.ACME.ContactEmail,
		ChallengeTimeout: time.Duration(cfg.ACME.ChallengeTimeoutSec) * time.Second,
		Validity:         time.Duration(cfg.ACME.ValidityDays) * 24 * time.Hour,
	}, logger)

	renewWorker := acme.NewRenewWorker(workflow, acme.RenewWorkerConfig{
		Enabled:     cfg.RenewWorker.Enabled,
		IntervalSec: cfg.RenewWorker.IntervalSec,
	})
	renewWorker.Start()
	defer renewWorker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. Issue/renew if needed, then serve
	server := bootstrap.NewServer(cfg.HTTPAddr, st, workflow, engine, logger)
	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
	if err := server.Run(ctx); err != nil {
		log.Printf("Server failed: %v", err)
		os.Exit(1)
	}
}
