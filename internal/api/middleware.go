package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/punchamoorthee/decoledger/internal/auth"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/models"
	"github.com/punchamoorthee/decoledger/internal/store"
)

var (
	errIdempotencyInProgress = errors.New("request processing in progress")
	errIdempotencyMismatch   = errors.New("key reuse with mismatched payload")
)

// authenticate turns the bearer token into the call environment and stamps
// the arrival time.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		call, err := auth.ParseToken(token, h.jwtSecret)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}
		call.At = h.now()

		next.ServeHTTP(w, r.WithContext(host.WithEnv(r.Context(), call)))
	})
}

// idempotencyKey scopes keys per caller.
func idempotencyKey(caller, key string) string {
	return "idem/" + caller + "/" + key
}

// requestHash binds a key to one method, path, attached deposit and body.
func requestHash(method, path string, deposit domain.Amount, body []byte) string {
	hash := sha256.New()
	fmt.Fprintf(hash, "%s %s\n%s\n", method, path, deposit)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// idempotent replays the stored response when a caller repeats a request
// with the same Idempotency-Key. Requests without the header pass through.
// Server errors release the key so the request can be retried.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		env, err := host.EnvFrom(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Stream read error")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		reqHash := requestHash(r.Method, r.URL.Path, env.AttachedPayment(), bodyBytes)
		storeKey := idempotencyKey(env.CallerID().String(), key)
		existing, err := h.reserveKey(r.Context(), storeKey, key, reqHash)
		switch {
		case errors.Is(err, errIdempotencyInProgress), errors.Is(err, store.ErrConflict):
			respondWithError(w, http.StatusConflict, errIdempotencyInProgress.Error())
			return
		case errors.Is(err, errIdempotencyMismatch):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			h.fail(w, r, err)
			return
		}

		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(existing.ResponseStatus)
			w.Write(existing.ResponseBody)
			return
		}

		rec := &responseCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The response is already on the wire; finishing the record must not
		// depend on the client still being connected.
		ctx := context.WithoutCancel(r.Context())
		if err := h.completeKey(ctx, storeKey, key, reqHash, rec); err != nil {
			h.log.Error(ctx, "idempotency record not saved", "key", key, "error", err)
		}
	})
}

// reserveKey marks key in progress, or returns the completed record to replay.
func (h *Handler) reserveKey(ctx context.Context, storeKey, key, reqHash string) (*models.IdempotencyRecord, error) {
	var existing *models.IdempotencyRecord
	err := h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		raw, err := tx.Get(ctx, storeKey)
		if err == nil {
			var rec models.IdempotencyRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode idempotency record: %w", err)
			}
			if rec.RequestHash != reqHash {
				return errIdempotencyMismatch
			}
			if rec.Status != models.IdempotencyCompleted {
				return errIdempotencyInProgress
			}
			existing = &rec
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		raw, err = json.Marshal(models.IdempotencyRecord{
			Key:         key,
			RequestHash: reqHash,
			Status:      models.IdempotencyInProgress,
		})
		if err != nil {
			return err
		}
		return tx.Put(ctx, storeKey, raw)
	})
	return existing, err
}

func (h *Handler) completeKey(ctx context.Context, storeKey, key, reqHash string, rec *responseCapture) error {
	return h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if rec.status >= http.StatusInternalServerError {
			return tx.Delete(ctx, storeKey)
		}
		raw, err := json.Marshal(models.IdempotencyRecord{
			Key:            key,
			RequestHash:    reqHash,
			Status:         models.IdempotencyCompleted,
			ResponseStatus: rec.status,
			ResponseBody:   json.RawMessage(bytes.TrimSpace(rec.body.Bytes())),
		})
		if err != nil {
			return err
		}
		return tx.Put(ctx, storeKey, raw)
	})
}

// responseCapture tees the response body so it can be stored for replay.
type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
