// Package payout turns ledger payout requests into durable outbox records and
// delivers them to the host's payment webhook.
package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// Outbox records each payout as pending inside the ledger call that requests
// it. Delivery happens in the Dispatcher.
type Outbox struct {
	now   func() time.Time
	newID func() string
}

func NewOutbox() *Outbox {
	return &Outbox{now: time.Now, newID: uuid.NewString}
}

func (o *Outbox) SchedulePayout(ctx context.Context, tx store.Tx, ledger, to domain.AccountID, amount domain.Amount) error {
	p := domain.Payout{
		ID:          o.newID(),
		Ledger:      ledger,
		Destination: to,
		Amount:      amount,
		Status:      domain.PayoutPending,
		CreatedAt:   o.now().UTC(),
	}
	if err := tx.SchedulePayout(ctx, p); err != nil {
		return fmt.Errorf("schedule payout to %s: %w", to, err)
	}
	return nil
}
