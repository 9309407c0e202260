package domain

import "time"

// MaxDecimals bounds token precision.
const MaxDecimals = 24

// FTSpec is the fungible token metadata spec string.
const FTSpec = "ft-1.0.0"

// ServiceRequest represents the latest document generation request for a repo.
// A newer request for the same RepoURL replaces it.
type ServiceRequest struct {
	Requester     AccountID `json:"requester_id"`
	RepoURL       string    `json:"github_repo_url"`
	SelectedAreas []string  `json:"selected_areas"`
	Timestamp     uint64    `json:"timestamp"`
	TransactionID string    `json:"transaction_id"`
}

// ServiceLedgerState is the root record of a service request ledger.
// Requests are stored beside it, keyed by repo url.
type ServiceLedgerState struct {
	Owner         AccountID `json:"owner"`
	MinFee        Amount    `json:"min_fee"`
	TotalServices uint64    `json:"total_services"`
	TotalFees     Amount    `json:"total_fees"`
	// NextSeq numbers requests; it feeds transaction ids.
	NextSeq uint64 `json:"next_seq"`
}

// ServiceStats is the read-only view of the running totals.
type ServiceStats struct {
	Owner              AccountID `json:"owner"`
	MinFee             Amount    `json:"min_fee"`
	TotalServices      uint64    `json:"total_services"`
	TotalFeesCollected Amount    `json:"total_fees_collected"`
}

// TokenLedgerState is the root record of a token ledger. Balances, members and
// the values hash are stored beside it.
//
// TotalSupply always equals the sum of all balances.
type TokenLedgerState struct {
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Decimals      uint8     `json:"decimals"`
	TotalSupply   Amount    `json:"total_supply"`
	Owner         AccountID `json:"owner"`
	Minter        AccountID `json:"minter,omitempty"`
	ServiceLedger AccountID `json:"service_ledger"`
}

// FTMetadata is the fungible token metadata view.
type FTMetadata struct {
	Spec          string  `json:"spec"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Icon          *string `json:"icon"`
	Reference     *string `json:"reference"`
	ReferenceHash *string `json:"reference_hash"`
	Decimals      uint8   `json:"decimals"`
}

// Holding is one non-zero balance.
type Holding struct {
	Account AccountID `json:"account_id"`
	Balance Amount    `json:"balance"`
}

// Payout is a request to move value out of a ledger, executed by the host.
type Payout struct {
	ID          string    `json:"id"`
	Ledger      AccountID `json:"ledger"`
	Destination AccountID `json:"destination"`
	Amount      Amount    `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	PayoutPending = "pending"
	PayoutDone    = "done"
	// PayoutFailed payouts were rejected by the receiver and re-credited.
	PayoutFailed = "failed"
)
