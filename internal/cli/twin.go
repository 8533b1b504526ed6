package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/pizza-e2e/internal/client"
	"github.com/wondertwin-ai/pizza-e2e/internal/manifest"
	"github.com/wondertwin-ai/pizza-e2e/internal/pizzaapi"
	"github.com/wondertwin-ai/pizza-e2e/pkg/twincore"
)

type twinOptions struct {
	addr   string
	seed   string
	secret string
}

func (o *twinOptions) overrides(cmd *cobra.Command) func(m *manifest.Manifest) {
	return func(m *manifest.Manifest) {
		if cmd.Flags().Changed("addr") {
			m.Twin.Addr = o.addr
		}
		if cmd.Flags().Changed("seed") {
			m.Twin.Seed = o.seed
		}
		if cmd.Flags().Changed("secret") {
			m.Twin.Secret = o.secret
		}
	}
}

func newTwinCommand(root *RootOptions) *cobra.Command {
	opts := &twinOptions{}
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Serve or control the JWT Pizza service twin",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "twin listen address (default from manifest)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the twin until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, logger, err := root.load(opts.overrides(cmd))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			twin, _, err := pizzaapi.NewTwin(&twincore.Config{
				Name:     "pizza-twin",
				Addr:     m.Twin.Addr,
				SeedFile: m.SeedPath(),
			}, logger, m.Twin.Secret)
			if err != nil {
				return WrapExitError(ExitCommandError, "starting twin", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Info("serving pizza twin", zap.String("addr", m.Twin.Addr), zap.String("version", pizzaapi.Version))
			if err := twin.Serve(ctx); err != nil {
				return WrapExitError(ExitCommandError, "serving twin", err)
			}
			return nil
		},
	}
	serve.Flags().StringVar(&opts.seed, "seed", "", "JSON state file loaded at startup")
	serve.Flags().StringVar(&opts.secret, "secret", "", "JWT signing secret (random when empty)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Health check a running twin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(opts.overrides(cmd))
			if err != nil {
				return err
			}
			ok, body := client.New(m.Twin.Addr).Health(cmd.Context())
			health := "healthy"
			if !ok {
				health = "unhealthy"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %-11s %-22s %s\n", health, m.Twin.Addr, body)
			if !ok {
				return NewExitError(ExitFailure, "twin is unhealthy")
			}
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore a running twin's seed data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(opts.overrides(cmd))
			if err != nil {
				return err
			}
			resp, err := client.New(m.Twin.Addr).Reset(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset   %s\n", resp)
			return nil
		},
	}

	seed := &cobra.Command{
		Use:   "seed <file>",
		Short: "Replace a running twin's state with a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(opts.overrides(cmd))
			if err != nil {
				return err
			}
			resp, err := client.New(m.Twin.Addr).Seed(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "seed failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded  %s\n", resp)
			return nil
		},
	}

	state := &cobra.Command{
		Use:   "state",
		Short: "Print a running twin's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := root.load(opts.overrides(cmd))
			if err != nil {
				return err
			}
			raw, err := client.New(m.Twin.Addr).State(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "fetching state", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(raw))
			return nil
		},
	}

	cmd.AddCommand(serve, status, reset, seed, state)
	return cmd
}

// prettyJSON indents raw, or returns it unchanged when it is not JSON.
func prettyJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
