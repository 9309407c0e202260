package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/decoledger/internal/auth"
	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		caller  string
		deposit string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token that calls the api as an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := v.GetString("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			id, err := domain.ParseAccountID(caller)
			if err != nil {
				return err
			}
			amount := domain.NewAmount(0)
			if deposit != "" {
				if amount, err = domain.ParseAmount(deposit); err != nil {
					return err
				}
			}

			token, err := auth.GenerateToken(id, amount, []byte(secret), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "calling account id")
	cmd.Flags().StringVar(&deposit, "deposit", "", "payment attached to every call made with the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token validity")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}
