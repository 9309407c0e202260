// Package models holds the JSON bodies of the HTTP API.
package models

import (
	"encoding/json"

	"github.com/punchamoorthee/decoledger/internal/domain"
)

type InitServiceLedgerRequest struct {
	Owner  domain.AccountID `json:"owner"`
	MinFee domain.Amount    `json:"min_fee"`
}

type DocumentGenerationRequest struct {
	RepoURL       string   `json:"repo_url"`
	SelectedAreas []string `json:"selected_areas"`
}

type WithdrawFeesRequest struct {
	Amount domain.Amount    `json:"amount"`
	To     domain.AccountID `json:"to"`
}

type SetFeeRequest struct {
	Fee domain.Amount `json:"fee"`
}

type FeeResponse struct {
	Fee domain.Amount `json:"fee"`
}

type InitTokenLedgerRequest struct {
	Owner         domain.AccountID `json:"owner"`
	Name          string           `json:"name"`
	Symbol        string           `json:"symbol"`
	Decimals      uint8            `json:"decimals"`
	ServiceLedger domain.AccountID `json:"service_ledger"`
	Minter        domain.AccountID `json:"minter,omitempty"`
}

// TokenAmountRequest is the body of mint and burn.
type TokenAmountRequest struct {
	Account domain.AccountID `json:"account_id"`
	Amount  domain.Amount    `json:"amount"`
}

type ValuesHashRequest struct {
	Hash string `json:"hash"`
}

type ValuesHashResponse struct {
	Hash *string `json:"hash"`
}

type MinterRequest struct {
	Minter domain.AccountID `json:"minter"`
}

type SupplyResponse struct {
	TotalSupply domain.Amount `json:"total_supply"`
}

type BalanceResponse struct {
	Account domain.AccountID `json:"account_id"`
	Balance domain.Amount    `json:"balance"`
}

type OwnerResponse struct {
	Owner domain.AccountID `json:"owner"`
}

type MembershipResponse struct {
	Account domain.AccountID `json:"account_id"`
	Active  bool             `json:"active"`
}

type MembersResponse struct {
	Members []domain.AccountID `json:"members"`
}

type HoldersResponse struct {
	Holders []domain.Holding `json:"holders"`
}

// EventPage is one page of a ledger's event stream. Next is the cursor to
// pass as after for the following page.
type EventPage struct {
	Ledger domain.AccountID `json:"ledger"`
	Events []domain.Event   `json:"events"`
	Next   uint64           `json:"next"`
}

// IdempotencyRecord remembers the response to a mutating request sent with an
// Idempotency-Key header.
type IdempotencyRecord struct {
	Key            string          `json:"key"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
}

const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)
