package main

import (
	"database/sql"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	custodypg "tranche-vault/internal/custody/infrastructure/postgres"
	eligibility "tranche-vault/internal/eligibility/domain"
	eligibilitypg "tranche-vault/internal/eligibility/infrastructure/postgres"
)

type seedOptions struct {
	assetClass string
	holders    []string
	prefix     string
	count      int
	amount     string
	skipAllow  bool
}

func (o seedOptions) addresses() []string {
	out := append([]string(nil), o.holders...)
	for i := 1; i <= o.count; i++ {
		out = append(out, fmt.Sprintf("%s-%04d", o.prefix, i))
	}
	return out
}

func newSeedCommand(load func() settings) *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fund custody accounts and allow-list holders directly in postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := load()
			if s.DatabaseURL == "" {
				return errors.New("database-url or VAULTCTL_DATABASE_URL is required")
			}
			if opts.assetClass == "" && !opts.skipAllow {
				return errors.New("asset-class is required unless --skip-allow is set")
			}
			holders := opts.addresses()
			if len(holders) == 0 {
				return errors.New("no holders: use --holder or --count")
			}
			raw, err := toBaseUnits(opts.amount, s.Decimals)
			if err != nil {
				return err
			}
			amount, err := math.ParseUint(raw)
			if err != nil {
				return err
			}

			db, err := sql.Open("pgx", s.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if err := db.PingContext(ctx); err != nil {
				return err
			}

			ledger := custodypg.NewLedger(db)
			allowList := eligibilitypg.NewAllowList(db)
			for _, holder := range holders {
				if !amount.IsZero() {
					if err := ledger.Credit(ctx, holder, amount); err != nil {
						return fmt.Errorf("credit %s: %w", holder, err)
					}
				}
				if !opts.skipAllow {
					if err := allowList.Allow(ctx, eligibility.Entry{AssetClass: opts.assetClass, Address: holder}); err != nil {
						return fmt.Errorf("allow %s: %w", holder, err)
					}
				}
			}
			printf(cmd.OutOrStdout(), "seeded %d holders with %s each\n", len(holders), fromBaseUnits(amount.String(), s.Decimals))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.assetClass, "asset-class", "", "asset class to allow-list holders for")
	cmd.Flags().StringSliceVar(&opts.holders, "holder", nil, "holder address, repeatable")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "holder", "prefix for generated holder addresses")
	cmd.Flags().IntVar(&opts.count, "count", 0, "number of generated holders")
	cmd.Flags().StringVar(&opts.amount, "amount", "0", "underlying credited to each holder")
	cmd.Flags().BoolVar(&opts.skipAllow, "skip-allow", false, "only fund custody accounts")
	return cmd
}
