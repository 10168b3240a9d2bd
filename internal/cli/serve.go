package cli

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/offchain/internal/client"
	"github.com/roach88/offchain/internal/config"
	"github.com/roach88/offchain/internal/jws"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/processor"
	"github.com/roach88/offchain/internal/server"
	"github.com/roach88/offchain/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config string

	// Handler overrides the follow-up action handler (for testing).
	Handler processor.ActionHandler
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the off-chain API endpoint",
		Long: `Serve POST /v2/command for counterparty VASPs and run the follow-up
processor over stored payments until interrupted.

Settings come from the YAML file given with --config, overridden by
OFFCHAIN_* environment variables (OFFCHAIN_SERVER_LISTEN, ...).

Example:
  offchain serve --config offchain.yaml
  OFFCHAIN_STORE_PATH=/tmp/vasp.db offchain serve --config offchain.yaml -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	key, err := jws.ParsePrivateKey(cfg.VASP.ComplianceKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid compliance key", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening store", "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store.Path, store.Options{ResponseCacheSize: cfg.Store.ResponseCacheSize})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	l, err := cfg.Ledger.OpenLedger(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	c, err := client.New(client.Options{
		HRP:     cfg.Network.HRP,
		Address: cfg.VASP.Address,
		Key:     key,
		Ledger:  l,
		Store:   st,
		Retry: client.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
			MaxElapsed:  cfg.Retry.MaxElapsed,
		},
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create client", err)
	}

	handler := opts.Handler
	if handler == nil {
		handler = operatorHandler{logger: logger}
	}
	proc := processor.New(st, c, handler,
		processor.WithWorkers(cfg.Processor.Workers),
		processor.WithInterval(cfg.Processor.Interval),
		processor.WithLogger(logger),
	)
	srv := server.New(c, logger)

	logger.Info("node starting",
		"address", cfg.VASP.Address,
		"hrp", cfg.Network.HRP,
		"listen", cfg.Server.Listen,
		"public_key", jws.PublicKeyHex(key.Public().(ed25519.PublicKey)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Listen) })
	g.Go(func() error { return proc.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "node error", err)
	}

	logger.Info("node stopped gracefully")
	return nil
}

// operatorHandler leaves KYC decisions to an operator and reports payments
// that are ready to settle.
type operatorHandler struct {
	logger *slog.Logger
}

func (h operatorHandler) HandleAction(ctx context.Context, action offchain.ActionKind, cmd *offchain.PaymentCommand) (*offchain.PaymentCommand, error) {
	p := cmd.Payment()
	if action == offchain.ActionSubmitTransaction {
		h.logger.Info("payment ready for settlement",
			"reference_id", p.ReferenceID,
			"amount", p.Action.Amount,
			"currency", p.Action.Currency,
			"receiver", p.Receiver.Address,
		)
		return nil, nil
	}
	h.logger.Debug("awaiting operator",
		"reference_id", p.ReferenceID,
		"action", action,
	)
	return nil, fmt.Errorf("%s on %s: %w", action, p.ReferenceID, processor.ErrDefer)
}
