package acme

import (
	"context"
	"log"
	"time"
)

// RenewWorkerConfig holds configuration for the renew worker.
type RenewWorkerConfig struct {
	Enabled     bool // Whether the worker is enabled
	IntervalSec int  // Polling interval in seconds
}

// RenewWorker periodically re-runs the issuance workflow so an expiring
// certificate is renewed while the process is up, not only at boot.
type RenewWorker struct {
	workflow *Workflow
	config   RenewWorkerConfig
	stopChan chan struct{}
}

// NewRenewWorker creates a new RenewWorker.
func NewRenewWorker(workflow *Workflow, config RenewWorkerConfig) *RenewWorker {
	return &RenewWorker{
		workflow: workflow,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start starts the worker.
func (w *RenewWorker) Start() {
	if !w.config.Enabled {
		log.Println("[RenewWorker] Disabled, not starting")
		return
	}

	log.Printf("[RenewWorker] Starting with interval=%ds\n", w.config.IntervalSec)

	go w.run()
}

// Stop stops the worker.
func (w *RenewWorker) Stop() {
	log.Println("[RenewWorker] Stopping...")
	close(w.stopChan)
}

// run is the main worker loop.
func (w *RenewWorker) run() {
	ticker := time.NewTicker(time.Duration(w.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.stopChan:
			log.Println("[RenewWorker] Stopped")
			return
		}
	}
}

// tick runs one renewal check. Failures are logged; the process keeps
// serving with the material it already has.
func (w *RenewWorker) tick() {
	if err := w.workflow.EnsureCertificate(context.Background()); err != nil {
		log.Printf("[RenewWorker] Renewal check failed: %v\n", err)
	}
}
