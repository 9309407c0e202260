// Package events appends typed domain events to a ledger's stream inside the
// store transaction of the call that produced them.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/store"
)

// Emit encodes payload and appends it to ledger's stream. The returned event
// carries the sequence number assigned by the store.
func Emit(ctx context.Context, tx store.Tx, ledger domain.AccountID, kind domain.EventKind, ts uint64, payload any) (domain.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode %s event: %w", kind, err)
	}
	ev, err := tx.AppendEvent(ctx, domain.Event{
		Ledger:    ledger,
		Kind:      kind,
		Timestamp: ts,
		Data:      data,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("append %s event: %w", kind, err)
	}
	return ev, nil
}
