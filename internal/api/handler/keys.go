package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/api/response"
	"github.com/kiranshivaraju/catalogstudio/internal/apikey"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// KeyStore is the API key slice of store.Store.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears in this response only.
func NewCreateKeyHandler(ks KeyStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		for _, s := range req.Scopes {
			if s != apikey.ScopeGenerate && s != apikey.ScopeAdmin {
				response.Error(w, response.CodeInvalidScope, "Unknown scope "+s, nil)
				return
			}
		}

		raw, key, err := apikey.New(req.Name, req.Scopes)
		if errors.Is(err, apikey.ErrInvalidName) {
			response.Error(w, response.CodeInvalidRequest, "name is required", nil)
			return
		}
		if err != nil {
			log.Error("mint api key failed", "error", err)
			response.Error(w, response.CodeInternal, "An unexpected error occurred", nil)
			return
		}

		if err := ks.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, response.CodeKeyNameConflict, "An API key with this name already exists", nil)
				return
			}
			log.Error("create api key failed", "name", key.Name, "error", err)
			response.Error(w, response.CodeInternal, "An unexpected error occurred", nil)
			return
		}

		response.Created(w, createKeyResponse{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(ks KeyStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := ks.ListAPIKeys(r.Context())
		if err != nil {
			log.Error("list api keys failed", "error", err)
			response.Error(w, response.CodeInternal, "An unexpected error occurred", nil)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(ks KeyStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, ok := pathUUID(w, r, "keyID", response.CodeInvalidKeyID, "key ID")
		if !ok {
			return
		}
		if err := ks.RevokeAPIKey(r.Context(), keyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, response.CodeKeyNotFound, "API key not found", nil)
				return
			}
			log.Error("revoke api key failed", "key_id", keyID, "error", err)
			response.Error(w, response.CodeInternal, "An unexpected error occurred", nil)
			return
		}
		response.NoContent(w)
	}
}
