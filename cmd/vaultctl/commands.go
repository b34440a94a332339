package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tranche-vault/internal/access"
	"tranche-vault/internal/auth"
)

func vaultPath(class string, parts ...string) string {
	path := "/api/v1/vaults/" + url.PathEscape(class)
	for _, part := range parts {
		path += "/" + part
	}
	return path
}

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
		caps    []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an HS256 bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedRole, ok := auth.NormalizeRole(role)
			if !ok {
				return errors.New("unknown role " + role)
			}
			extra := make([]access.Capability, 0, len(caps))
			for _, raw := range caps {
				capability, ok := access.ParseCapability(raw)
				if !ok {
					return errors.New("unknown capability " + raw)
				}
				extra = append(extra, capability)
			}
			token, err := auth.SignToken([]byte(secret), subject, parsedRole, ttl, extra...)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (AUTH_JWT_SECRET of the service)")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, the caller address")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleHolder), "holder, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringSliceVar(&caps, "cap", nil, "extra capability, repeatable")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newSummaryCommand(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [asset-class]",
		Short: "Show one vault, or list all vaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			path := "/api/v1/vaults"
			if len(args) == 1 {
				path = vaultPath(args[0])
			}
			data, err := c.Do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

type positionView struct {
	Holder    string `json:"holder"`
	Balance   string `json:"balance"`
	Unlocked  string `json:"unlocked"`
	Committed string `json:"committed"`
	Tranches  []struct {
		Shares   string    `json:"shares"`
		UnlockAt time.Time `json:"unlock_at"`
	} `json:"tranches"`
}

func newPositionCommand(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "position <asset-class> <holder>",
		Short: "Show a holder's shares and tranches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := client()
			if err != nil {
				return err
			}
			var view positionView
			if err := c.DoJSON(cmd.Context(), http.MethodGet, vaultPath(args[0], "positions", url.PathEscape(args[1])), nil, &view); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "holder     %s\n", view.Holder)
			printf(out, "balance    %s\n", fromBaseUnits(view.Balance, s.Decimals))
			printf(out, "unlocked   %s\n", fromBaseUnits(view.Unlocked, s.Decimals))
			printf(out, "committed  %s\n", fromBaseUnits(view.Committed, s.Decimals))
			for i, tranche := range view.Tranches {
				printf(out, "tranche %d  %s unlocks %s\n", i, fromBaseUnits(tranche.Shares, s.Decimals), tranche.UnlockAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newDepositCommand(client clientFactory) *cobra.Command {
	var receiver string
	cmd := &cobra.Command{
		Use:   "deposit <asset-class> <assets>",
		Short: "Deposit assets and mint a locked tranche",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := client()
			if err != nil {
				return err
			}
			assets, err := toBaseUnits(args[1], s.Decimals)
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "deposit"), map[string]string{
				"assets":   assets,
				"receiver": receiver,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "share receiver, defaults to the caller")
	return cmd
}

func newRedeemCommand(client clientFactory) *cobra.Command {
	var receiver, owner string
	cmd := &cobra.Command{
		Use:   "redeem <asset-class> <shares>",
		Short: "Redeem unlocked shares at the current price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := client()
			if err != nil {
				return err
			}
			shares, err := toBaseUnits(args[1], s.Decimals)
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "redeem"), map[string]string{
				"shares":   shares,
				"receiver": receiver,
				"owner":    owner,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "asset receiver, defaults to the caller")
	cmd.Flags().StringVar(&owner, "owner", "", "share owner, defaults to the caller")
	return cmd
}

func newEarlyExitCommand(client clientFactory) *cobra.Command {
	var receiver string
	cmd := &cobra.Command{
		Use:   "early-exit <asset-class> <shares>",
		Short: "Queue a penalized redemption of locked shares",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := client()
			if err != nil {
				return err
			}
			shares, err := toBaseUnits(args[1], s.Decimals)
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "early-exit"), map[string]string{
				"shares":   shares,
				"receiver": receiver,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "asset receiver, defaults to the caller")
	return cmd
}

func newCancelCommand(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <asset-class> <request-id>",
		Short: "Cancel an open early-exit request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "requests", strconv.FormatUint(id, 10), "cancel"), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newDueCommand(client clientFactory) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "due <asset-class>",
		Short: "List request ids ready for settlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			query := url.Values{"due": []string{"true"}}
			if owner != "" {
				query.Set("owner", owner)
			}
			var resp struct {
				Due []uint64 `json:"due"`
			}
			if err := c.DoJSON(cmd.Context(), http.MethodGet, vaultPath(args[0], "requests")+"?"+query.Encode(), nil, &resp); err != nil {
				return err
			}
			for _, id := range resp.Due {
				printf(cmd.OutOrStdout(), "%d\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only requests owned by this address")
	return cmd
}

func newProcessCommand(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "process <asset-class> [request-id...]",
		Short: "Settle the given requests, or every due request when none are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			ids := make([]uint64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := strconv.ParseUint(raw, 10, 64)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "process-batch"), map[string][]uint64{"ids": ids})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newCollectFeesCommand(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "collect-fees <asset-class>",
		Short: "Accrue management and performance fees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPost, vaultPath(args[0], "collect-fees"), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func newNavCommand(client clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Read or report asset-class valuations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <asset-class>",
		Short: "Show the valuation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := client()
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodGet, "/api/v1/nav/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <asset-class> <nav>",
		Short: "Report a new valuation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := client()
			if err != nil {
				return err
			}
			value, err := toBaseUnits(args[1], s.Decimals)
			if err != nil {
				return err
			}
			data, err := c.Do(cmd.Context(), http.MethodPut, "/api/v1/nav/"+url.PathEscape(args[0]), map[string]string{"nav": value})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	})
	return cmd
}
