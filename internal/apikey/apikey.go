// Package apikey mints operator API keys.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

const (
	rawPrefix = "cs_"
	// PrefixLen must match the auth middleware's lookup prefix.
	PrefixLen = 8
)

// Scopes a key may carry.
const (
	ScopeGenerate = "generate"
	ScopeAdmin    = "admin"
)

var ErrInvalidName = errors.New("api key name is required")

// New returns a fresh raw key and the record to persist for it. The raw key
// is never stored; show it to the operator once.
func New(name string, scopes []string) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, ErrInvalidName
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeGenerate}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := rawPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
