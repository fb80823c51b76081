package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/daap14/askdb/internal/permission"
)

// KeyPrefix starts every raw API key.
const KeyPrefix = "askdb_"

const prefixLen = 12

// ErrInvalidKey is returned when the provided API key does not match any active key.
var ErrInvalidKey = errors.New("invalid or revoked API key")

// Service provides authentication operations.
type Service struct {
	keyRepo    KeyRepository
	bcryptCost int
}

// NewService creates a new auth Service.
func NewService(keyRepo KeyRepository, bcryptCost int) *Service {
	return &Service{
		keyRepo:    keyRepo,
		bcryptCost: bcryptCost,
	}
}

// GenerateKey creates a new API key. Returns the raw key, its lookup prefix,
// and the bcrypt hash. The raw key is: 32 random bytes -> base64url ->
// prepend KeyPrefix.
func (s *Service) GenerateKey() (rawKey, prefix, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(b)
	prefix = rawKey[:prefixLen]

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(rawKey), s.bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hashing key: %w", err)
	}
	hash = string(hashBytes)

	return rawKey, prefix, hash, nil
}

// Issue creates and stores a key for principal. The raw key is returned
// once and never stored.
func (s *Service) Issue(ctx context.Context, principal permission.Principal, label string) (string, *APIKey, error) {
	id := strings.ToLower(strings.TrimSpace(principal.ID))
	if id == "" {
		return "", nil, errors.New("principal id is required")
	}
	kind := principal.Kind
	if kind == "" {
		kind = permission.KindUser
	}

	rawKey, prefix, hash, err := s.GenerateKey()
	if err != nil {
		return "", nil, err
	}

	k := &APIKey{
		PrincipalID:   id,
		PrincipalKind: kind,
		Label:         label,
		KeyPrefix:     prefix,
		KeyHash:       hash,
	}
	if err := s.keyRepo.Create(ctx, k); err != nil {
		return "", nil, fmt.Errorf("storing api key: %w", err)
	}

	return rawKey, k, nil
}

// Authenticate resolves a raw API key to an Identity. It extracts the prefix,
// looks up candidates, and bcrypt-compares each one.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if len(rawKey) < prefixLen || !strings.HasPrefix(rawKey, KeyPrefix) {
		return nil, ErrInvalidKey
	}

	candidates, err := s.keyRepo.FindByPrefix(ctx, rawKey[:prefixLen])
	if err != nil {
		return nil, fmt.Errorf("finding keys by prefix: %w", err)
	}

	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return &Identity{PrincipalID: k.PrincipalID, Kind: k.PrincipalKind, KeyID: k.ID}, nil
		}
	}

	return nil, ErrInvalidKey
}

// BootstrapAdminKey issues a key for principal if no key has ever been
// issued. Returns the raw key (only displayed once), or an empty string if
// keys already exist.
func (s *Service) BootstrapAdminKey(ctx context.Context, principalID string) (string, error) {
	count, err := s.keyRepo.CountAll(ctx)
	if err != nil {
		return "", fmt.Errorf("counting api keys: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	rawKey, _, err := s.Issue(ctx, permission.Principal{ID: principalID, Kind: permission.KindUser}, "bootstrap")
	if err != nil {
		return "", fmt.Errorf("issuing bootstrap key: %w", err)
	}

	slog.Info("Bootstrap API key created", "principal", principalID, "key", rawKey)

	return rawKey, nil
}
