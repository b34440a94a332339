package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "VAULTCTL"

// settings are resolved from flags first, then VAULTCTL_* env.
type settings struct {
	Server      string
	Token       string
	Decimals    int32
	Timeout     time.Duration
	DatabaseURL string
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate tranche vaults over the HTTP API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.String("server", "http://localhost:8080", "vault service base url")
	flags.String("token", "", "bearer token")
	flags.Int32("decimals", 0, "fractional digits of the underlying asset; amounts are read and printed in whole units")
	flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.String("database-url", "", "postgres dsn for the seed command")
	_ = v.BindPFlags(flags)

	load := func() settings {
		return settings{
			Server:      v.GetString("server"),
			Token:       v.GetString("token"),
			Decimals:    v.GetInt32("decimals"),
			Timeout:     v.GetDuration("timeout"),
			DatabaseURL: v.GetString("database-url"),
		}
	}
	client := func() (*Client, settings, error) {
		s := load()
		c, err := NewClient(s.Server, s.Token, s.Timeout)
		return c, s, err
	}

	root.AddCommand(
		newTokenCommand(),
		newSummaryCommand(client),
		newPositionCommand(client),
		newDepositCommand(client),
		newRedeemCommand(client),
		newEarlyExitCommand(client),
		newCancelCommand(client),
		newDueCommand(client),
		newProcessCommand(client),
		newCollectFeesCommand(client),
		newNavCommand(client),
		newSeedCommand(load),
	)
	return root
}

type clientFactory func() (*Client, settings, error)

func printJSON(out io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, werr := out.Write(data)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func printf(out io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(out, format, args...)
}
