package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/crmgateway/internal/models"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// ErrUnauthenticated is returned for missing, unknown, inactive, revoked and
// expired keys alike.
var ErrUnauthenticated = errors.New("invalid or missing API key")

// KeyStore looks up issued keys by digest. It returns store.ErrNotFound when
// no key matches.
type KeyStore interface {
	FindByHash(ctx context.Context, hash string) (*models.APIKey, error)
}

// UsageRecorder bumps last_used_at and the request counter of a key. The
// counter update must be a single atomic increment in the backing store.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

type Validator struct {
	keys         KeyStore
	usage        UsageRecorder
	usageTimeout time.Duration
	now          func() time.Time
	wg           sync.WaitGroup
}

func NewValidator(keys KeyStore, usage UsageRecorder, usageTimeout time.Duration) *Validator {
	if usageTimeout <= 0 {
		usageTimeout = 5 * time.Second
	}
	return &Validator{
		keys:         keys,
		usage:        usage,
		usageTimeout: usageTimeout,
		now:          time.Now,
	}
}

// Validate resolves a raw key into its stored record. Lookup failures other
// than "not found" are returned as-is so the caller can answer 500 instead of 401.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		return nil, ErrUnauthenticated
	}

	hash := HashAPIKey(rawKey)
	key, err := v.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errors.Wrap(err, "find api key")
	}

	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, ErrUnauthenticated
	}

	now := v.now()
	if !key.Usable(now) {
		return nil, ErrUnauthenticated
	}

	v.recordUsage(ctx, key.ID, now)
	return key, nil
}

// recordUsage runs detached from the request so it neither delays nor fails it.
func (v *Validator) recordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) {
	if v.usage == nil {
		return
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("api key usage recorder panicked", "api_key_id", keyID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.usageTimeout)
		defer cancel()

		if err := v.usage.RecordUsage(ctx, keyID, at); err != nil {
			slog.Error("failed to record api key usage", "api_key_id", keyID, "error", err)
		}
	}()
}

// Close waits for pending usage updates.
func (v *Validator) Close() {
	v.wg.Wait()
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// ExtractKey returns the key presented in header, falling back to an
// Authorization bearer token.
func ExtractKey(r *http.Request, header string) string {
	if key := strings.TrimSpace(r.Header.Get(header)); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}
