package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind names a ledger notification.
type EventKind string

const (
	EventServiceRequested   EventKind = "ServiceRequested"
	EventFeeUpdated         EventKind = "FeeUpdated"
	EventFeesWithdrawn      EventKind = "FeesWithdrawn"
	EventWithdrawalReverted EventKind = "WithdrawalReverted"
	EventMinted             EventKind = "Minted"
	EventBurned             EventKind = "Burned"
	EventMemberAdded        EventKind = "MemberAdded"
	EventMemberRemoved      EventKind = "MemberRemoved"
	EventValuesHashUpdated  EventKind = "ValuesHashUpdated"
	EventMinterUpdated      EventKind = "MinterUpdated"
)

// Event is one record of the append-only stream consumed by listeners.
// Seq is assigned by the store and grows in call order.
type Event struct {
	Seq       uint64          `json:"seq"`
	Ledger    AccountID       `json:"ledger"`
	Kind      EventKind       `json:"kind"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the kind-specific payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.Kind, e.Seq, err)
	}
	return nil
}

// ServiceRequested carries the stored request and the fee paid for it.
type ServiceRequested struct {
	ServiceRequest
	FeePaid Amount `json:"fee_paid"`
}

type FeeUpdated struct {
	OldFee Amount `json:"old_fee"`
	NewFee Amount `json:"new_fee"`
}

type FeesWithdrawn struct {
	Amount      Amount    `json:"amount"`
	Destination AccountID `json:"destination"`
}

type WithdrawalReverted struct {
	Amount      Amount    `json:"amount"`
	Destination AccountID `json:"destination"`
	Reason      string    `json:"reason"`
}

type Minted struct {
	Account AccountID `json:"account_id"`
	Amount  Amount    `json:"amount"`
}

type Burned struct {
	Account AccountID `json:"account_id"`
	Amount  Amount    `json:"amount"`
}

type MembershipChanged struct {
	Account AccountID `json:"account_id"`
}

type ValuesHashUpdated struct {
	Hash string `json:"hash"`
}

type MinterUpdated struct {
	Minter AccountID `json:"minter"`
}
