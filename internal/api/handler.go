// Package api exposes the ledgers over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/logging"
	"github.com/punchamoorthee/decoledger/internal/service"
	"github.com/punchamoorthee/decoledger/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deco_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deco_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

type Handler struct {
	requests  *service.RequestLedger
	tokens    *service.TokenLedger
	store     store.Store
	jwtSecret []byte
	log       logging.Logger
	now       func() time.Time
}

func NewHandler(requests *service.RequestLedger, tokens *service.TokenLedger, s store.Store, jwtSecret []byte, log logging.Logger) *Handler {
	return &Handler{
		requests:  requests,
		tokens:    tokens,
		store:     s,
		jwtSecret: jwtSecret,
		log:       log,
		now:       time.Now,
	}
}

// Routes builds the full router: health, metrics and the v1 API.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(h.metrics)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/events", h.ListEventsHandler).Methods(http.MethodGet)

	svc := apiV1.PathPrefix("/service/{ledger}").Subrouter()
	svc.HandleFunc("/fee", h.GetFeeHandler).Methods(http.MethodGet)
	svc.HandleFunc("/stats", h.GetStatsHandler).Methods(http.MethodGet)
	svc.HandleFunc("/requests", h.GetRequestHandler).Methods(http.MethodGet)

	tok := apiV1.PathPrefix("/token/{ledger}").Subrouter()
	tok.HandleFunc("/supply", h.GetSupplyHandler).Methods(http.MethodGet)
	tok.HandleFunc("/balances/{account}", h.GetBalanceHandler).Methods(http.MethodGet)
	tok.HandleFunc("/owner", h.GetOwnerHandler).Methods(http.MethodGet)
	tok.HandleFunc("/members", h.ListMembersHandler).Methods(http.MethodGet)
	tok.HandleFunc("/members/{account}", h.GetMemberHandler).Methods(http.MethodGet)
	tok.HandleFunc("/values-hash", h.GetValuesHashHandler).Methods(http.MethodGet)
	tok.HandleFunc("/metadata", h.GetMetadataHandler).Methods(http.MethodGet)
	tok.HandleFunc("/holders", h.ListHoldersHandler).Methods(http.MethodGet)

	// Mutations carry a caller token and may carry an Idempotency-Key.
	svcCalls := svc.NewRoute().Subrouter()
	svcCalls.Use(h.authenticate, h.idempotent)
	svcCalls.HandleFunc("", h.InitServiceLedgerHandler).Methods(http.MethodPost)
	svcCalls.HandleFunc("/requests", h.RequestDocumentGenerationHandler).Methods(http.MethodPost)
	svcCalls.HandleFunc("/withdrawals", h.WithdrawFeesHandler).Methods(http.MethodPost)
	svcCalls.HandleFunc("/fee", h.SetFeeHandler).Methods(http.MethodPut)

	tokCalls := tok.NewRoute().Subrouter()
	tokCalls.Use(h.authenticate, h.idempotent)
	tokCalls.HandleFunc("", h.InitTokenLedgerHandler).Methods(http.MethodPost)
	tokCalls.HandleFunc("/mint", h.MintHandler).Methods(http.MethodPost)
	tokCalls.HandleFunc("/burn", h.BurnHandler).Methods(http.MethodPost)
	tokCalls.HandleFunc("/members/{account}", h.AddMemberHandler).Methods(http.MethodPut)
	tokCalls.HandleFunc("/members/{account}", h.RemoveMemberHandler).Methods(http.MethodDelete)
	tokCalls.HandleFunc("/values-hash", h.SetValuesHashHandler).Methods(http.MethodPut)
	tokCalls.HandleFunc("/minter", h.SetMinterHandler).Methods(http.MethodPut)

	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// ledgerVar parses a path variable holding an account id.
func ledgerVar(r *http.Request, name string) (domain.AccountID, error) {
	id, err := domain.ParseAccountID(mux.Vars(r)[name])
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

// decodeBody reads a single JSON object into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
	}
	return nil
}

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
)

// statusFor maps an error returned by a ledger call to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrMinterNotConfigured):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyInitialized), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientDeposit):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDecimals),
		errors.Is(err, domain.ErrInvalidAccountID),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPayoutFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Internal errors are logged and
// their text is not sent to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusBadGateway {
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, code, "Internal Server Error")
		return
	}
	respondWithError(w, code, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
