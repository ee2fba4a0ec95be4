package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// sslKey is the reserved top-level key holding certificate material.
// Every other top-level key is a claimed name mapped to its credential hash.
const sslKey = "ssl"

// Material holds the TLS certificate material for the service's own hostname.
type Material struct {
	KeyPEM    []byte
	CertPEM   []byte
	ExpiresAt time.Time
}

// Store is the durable state container shared by the name registry and the
// certificate lifecycle. All mutations happen in memory under the lock and
// become durable through Save, which rewrites the whole file atomically.
type Store struct {
	mu    sync.Mutex
	path  string
	names map[string]string
	cert  Material
}

// sslRecord is the on-disk shape of the reserved ssl entry.
// Expire is epoch milliseconds; zero means no certificate.
type sslRecord struct {
	Key    string `json:"key"`
	Cert   string `json:"cert"`
	Expire int64  `json:"expire,omitempty"`
}

// Open loads the state file at path. A missing file yields an empty store,
// matching first-boot behavior.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		names: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	for key, value := range entries {
		if key == sslKey {
			var rec sslRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				return nil, fmt.Errorf("failed to parse certificate entry: %w", err)
			}
			if rec.Expire != 0 {
				s.cert = Material{
					KeyPEM:    []byte(rec.Key),
					CertPEM:   []byte(rec.Cert),
					ExpiresAt: time.UnixMilli(rec.Expire),
				}
			}
			continue
		}

		var hash string
		if err := json.Unmarshal(value, &hash); err != nil {
			return nil, fmt.Errorf("failed to parse entry %q: %w", key, err)
		}
		s.names[key] = hash
	}

	return s, nil
}

// Save writes the whole container to disk atomically (temp file + rename),
// so readers of the file never observe a partial write.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	entries := make(map[string]interface{}, len(s.names)+1)
	for name, hash := range s.names {
		entries[name] = hash
	}

	rec := sslRecord{}
	if !s.cert.ExpiresAt.IsZero() {
		rec = sslRecord{
			Key:    string(s.cert.KeyPEM),
			Cert:   string(s.cert.CertPEM),
			Expire: s.cert.ExpiresAt.UnixMilli(),
		}
	}
	entries[sslKey] = rec

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// Credential returns the stored credential hash for name.
func (s *Store) Credential(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.names[name]
	return hash, ok
}

// SetCredential records the credential hash for name in memory.
// Callers persist with Save.
func (s *Store) SetCredential(name, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[name] = hash
}

// Names returns all claimed names.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	return names
}

// Certificate returns the stored certificate material, if any.
func (s *Store) Certificate() (Material, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert.ExpiresAt.IsZero() {
		return Material{}, false
	}
	return s.cert, true
}

// SetCertificate replaces the certificate material and saves durably.
// A renewal fully overwrites the previous material.
func (s *Store) SetCertificate(m Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cert = m
	return s.saveLocked()
}
