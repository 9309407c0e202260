package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/models"
	"github.com/sethvargo/go-retry"
)

// HTTPSource reads the event stream from the api host.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSource) Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error) {
	q := url.Values{}
	q.Set("ledger", ledger.String())
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("events endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page models.EventPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode event page: %w", err)
	}
	return page.Events, nil
}

// OracleForwarder posts each request to the oracle's process-deco-request
// endpoint. Network errors and 5xx answers are retried with backoff.
type OracleForwarder struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64
	backoff    time.Duration
}

func NewOracleForwarder(oracleURL string, client *http.Client) *OracleForwarder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OracleForwarder{
		endpoint:   strings.TrimRight(oracleURL, "/") + "/process-deco-request",
		client:     client,
		maxRetries: 5,
		backoff:    500 * time.Millisecond,
	}
}

func (o *OracleForwarder) HandleServiceRequested(ctx context.Context, ev domain.ServiceRequested) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	b := retry.WithMaxRetries(o.maxRetries, retry.NewExponential(o.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("oracle returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		}
	})
}
