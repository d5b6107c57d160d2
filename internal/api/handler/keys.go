package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/workhuntr/internal/api/middleware"
	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

const createKeyAttempts = 3

var knownScopes = []string{mw.ScopeRead, mw.ScopePipeline, mw.ScopeAdmin}

// KeyManager administers API keys.
type KeyManager interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key is returned once; only its bcrypt hash is stored.
func NewCreateKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := response.Decode(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{mw.ScopeRead}
		}
		for _, s := range req.Scopes {
			if !slices.Contains(knownScopes, s) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					fmt.Sprintf("unknown scope %q", s), map[string]any{"allowed": knownScopes})
				return
			}
		}

		// A prefix collision is the only expected duplicate; retry with a fresh key.
		for attempt := 0; attempt < createKeyAttempts; attempt++ {
			raw, key, err := newAPIKey(req.Name, req.Scopes)
			if err != nil {
				slog.Error("failed to generate api key", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
				return
			}

			err = keys.CreateAPIKey(r.Context(), key)
			if errors.Is(err, store.ErrDuplicateKey) {
				continue
			}
			if err != nil {
				slog.Error("failed to store api key", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
				return
			}

			slog.Info("api key created", "key_id", key.ID, "name", key.Name, "scopes", key.Scopes)
			response.Created(w, createdKey{APIKey: key, Key: raw})
			return
		}

		response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "Could not allocate a unique key prefix", nil)
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := keys.ListAPIKeys(r.Context())
		if err != nil {
			slog.Error("failed to list api keys", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.JSON(w, list)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, ok := uuidParam(w, r, "keyID")
		if !ok {
			return
		}

		if err := keys.RevokeAPIKey(r.Context(), keyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found", nil)
				return
			}
			slog.Error("failed to revoke api key", "key_id", keyID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// newAPIKey generates a raw key of the form <prefix>_<secret> where the
// prefix is mw.KeyPrefixLen hex characters.
func newAPIKey(name string, scopes []string) (string, *models.APIKey, error) {
	buf := make([]byte, mw.KeyPrefixLen/2+24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("read random: %w", err)
	}
	prefix := hex.EncodeToString(buf[:mw.KeyPrefixLen/2])
	raw := prefix + "_" + hex.EncodeToString(buf[mw.KeyPrefixLen/2:])

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: prefix,
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
