package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/OwenRay/rms-dns/internal/auth"
	"github.com/OwenRay/rms-dns/internal/store"
)

var (
	// ErrInvalidName is returned for names that are not lowercase alphabetic.
	ErrInvalidName = errors.New("invalid name")

	// ErrForbiddenName is returned for names on the restricted list.
	ErrForbiddenName = errors.New("name is restricted")

	// ErrBadCredential is returned when a re-claim presents a password that
	// does not verify against the stored hash.
	ErrBadCredential = errors.New("credential mismatch")
)

var namePattern = regexp.MustCompile(`^[a-z]+$`)

// restrictedNames are reserved system and infrastructure words that can
// never be claimed.
var restrictedNames = map[string]struct{}{
	"www": {}, "www2": {}, "owen": {}, "certification": {},
	"mail": {}, "remote": {}, "webmail": {}, "ns1": {}, "ns2": {}, "smtp": {},
	"server": {}, "secure": {}, "vpn": {}, "api": {}, "official": {},
	"email": {}, "shop": {}, "ftp": {}, "test": {}, "ns": {}, "portal": {}, "support": {},
	"dev": {}, "web": {}, "mx": {}, "admin": {}, "cloud": {}, "forum": {},
}

// Restricted reports whether name is on the restricted list.
func Restricted(name string) bool {
	_, ok := restrictedNames[name]
	return ok
}

// ValidName reports whether name is a claimable identifier (lowercase
// alphabetic, non-empty).
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Claim is the result of a successful TryClaim.
type Claim struct {
	Name string
	New  bool // true for a first claim, false for a re-claim
}

// Registry owns the claimed-name table. A name belongs to whoever first
// claimed it; re-claiming requires the original password.
type Registry struct {
	// mu serializes the read-verify-write of a claim so that concurrent
	// claims of the same name cannot both win.
	mu    sync.Mutex
	store *store.Store
}

// New creates a Registry backed by the shared state store.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// TryClaim claims name with password, or re-claims it if the password
// verifies against the stored credential. The credential is rewritten on
// every successful claim, and the state store saved durably.
//
// The restricted check runs before format and credential checks.
func (r *Registry) TryClaim(name, password string) (Claim, error) {
	if Restricted(name) {
		return Claim{}, ErrForbiddenName
	}
	if !ValidName(name) {
		return Claim{}, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, claimed := r.store.Credential(name)
	if claimed && !auth.Verify(existing, password) {
		return Claim{}, ErrBadCredential
	}

	hash, err := auth.Generate(password)
	if err != nil {
		return Claim{}, fmt.Errorf("failed to hash credential: %w", err)
	}

	r.store.SetCredential(name, hash)
	if err := r.store.Save(); err != nil {
		return Claim{}, fmt.Errorf("failed to persist claim: %w", err)
	}

	return Claim{Name: name, New: !claimed}, nil
}

// IsAvailable reports whether name has never been claimed. Restricted
// names are filtered earlier in the request path.
func (r *Registry) IsAvailable(name string) bool {
	_, claimed := r.store.Credential(name)
	return !claimed
}
