package main

import (
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/listener"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEventsCmd(v *viper.Viper) *cobra.Command {
	var (
		apiURL string
		ledger string
		after  uint64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print a ledger's events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := domain.ParseAccountID(ledger)
			if err != nil {
				return err
			}
			if apiURL == "" {
				apiURL = v.GetString("API_BASE_URL")
			}
			if apiURL == "" {
				apiURL = "http://localhost:8080"
			}

			evs, err := listener.NewHTTPSource(apiURL, nil).Events(cmd.Context(), id, after, limit)
			if err != nil {
				return fmt.Errorf("fetch events: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range evs {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "api base url (default $API_BASE_URL)")
	cmd.Flags().StringVar(&ledger, "ledger", "", "ledger account id")
	cmd.Flags().Uint64Var(&after, "after", 0, "print events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	_ = cmd.MarkFlagRequired("ledger")
	return cmd
}
