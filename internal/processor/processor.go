// Package processor drives the local side of stored payments: it finds
// payments waiting on the local VASP, asks the application what to do, and
// submits the resulting revisions.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/offchain/internal/client"
	"github.com/roach88/offchain/internal/offchain"
	"github.com/roach88/offchain/internal/store"
)

// ErrDefer is returned by an ActionHandler that is not ready to act yet.
// The payment is offered again on the next pass.
var ErrDefer = errors.New("action deferred")

// ActionHandler performs a follow-up action for the local actor.
//
// It returns the next revision to send, or nil when the action needs no
// revision (submit_transaction, for instance). Revisions are normally built
// with cmd.Revise().
type ActionHandler interface {
	HandleAction(ctx context.Context, action offchain.ActionKind, cmd *offchain.PaymentCommand) (*offchain.PaymentCommand, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, action offchain.ActionKind, cmd *offchain.PaymentCommand) (*offchain.PaymentCommand, error)

// HandleAction implements ActionHandler.
func (f ActionHandlerFunc) HandleAction(ctx context.Context, action offchain.ActionKind, cmd *offchain.PaymentCommand) (*offchain.PaymentCommand, error) {
	return f(ctx, action, cmd)
}

// Submitter sends an outbound revision and stores it once accepted.
// Implemented by *client.Client.
type Submitter interface {
	Submit(ctx context.Context, cmd offchain.Command) (*offchain.CommandResponseObject, error)
}

// DefaultWorkers bounds concurrent handler calls.
const DefaultWorkers = 4

// DefaultInterval is the pause between passes in Run.
const DefaultInterval = 5 * time.Second

// Result summarizes one pass.
type Result struct {
	Handled   int
	Submitted int
	Deferred  int
	Failed    int
}

// Processor runs follow-up passes over the store.
//
// Thread-safety: RunOnce may be called from one goroutine at a time; it
// fans handler calls out to a bounded worker group.
type Processor struct {
	store    *store.Store
	sender   Submitter
	handler  ActionHandler
	workers  int
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of concurrent handler calls.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithInterval sets the pause between passes in Run.
func WithInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Processor.
func New(s *store.Store, sender Submitter, handler ActionHandler, opts ...Option) *Processor {
	p := &Processor{
		store:    s,
		sender:   sender,
		handler:  handler,
		workers:  DefaultWorkers,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs passes until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		res, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error("processor pass failed", "error", err)
		} else if res != (Result{}) {
			p.logger.Info("processor pass",
				"handled", res.Handled,
				"submitted", res.Submitted,
				"deferred", res.Deferred,
				"failed", res.Failed,
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce offers every payment waiting on the local VASP to the handler.
//
// Handler and delivery failures are logged and counted; they do not stop
// other payments. The error return is reserved for store failures.
func (p *Processor) RunOnce(ctx context.Context) (Result, error) {
	revisions, err := p.store.Unhandled(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load unhandled revisions: %w", err)
	}

	var handled, submitted, deferred, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, rev := range revisions {
		if rev.CommandType != offchain.CommandTypePayment {
			if rev.Terminal {
				if err := p.store.MarkHandled(ctx, rev.CID); err != nil {
					g.Wait()
					return Result{}, err
				}
			}
			continue
		}
		cmd, err := client.PaymentFromRevision(rev)
		if err != nil {
			p.logger.Error("load payment", "cid", rev.CID, "error", err)
			failed.Add(1)
			continue
		}

		action, ok := cmd.FollowUpAction()
		if !ok {
			// Counterparty's turn, or finished with nothing left to do here.
			if rev.Terminal {
				if err := p.store.MarkHandled(ctx, rev.CID); err != nil {
					g.Wait()
					return Result{}, err
				}
			}
			continue
		}

		g.Go(func() error {
			sent, err := p.follow(gctx, action, cmd)
			switch {
			case err == nil:
				handled.Add(1)
				if sent {
					submitted.Add(1)
				}
			case errors.Is(err, ErrDefer):
				deferred.Add(1)
			default:
				p.logger.Warn("follow-up failed",
					"reference_id", cmd.ReferenceID(),
					"cid", cmd.CID(),
					"action", action,
					"error", err,
				)
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{
		Handled:   int(handled.Load()),
		Submitted: int(submitted.Load()),
		Deferred:  int(deferred.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

// follow runs the handler for one payment. sent reports whether a new
// revision was accepted by the counterparty.
func (p *Processor) follow(ctx context.Context, action offchain.ActionKind, cmd *offchain.PaymentCommand) (sent bool, err error) {
	next, err := p.handler.HandleAction(ctx, action, cmd)
	if err != nil {
		return false, err
	}
	if next == nil {
		return false, p.store.MarkHandled(ctx, cmd.CID())
	}

	if err := next.Validate(cmd); err != nil {
		return false, fmt.Errorf("handler produced invalid revision: %w", err)
	}
	if _, err := p.sender.Submit(ctx, next); err != nil {
		return false, err
	}
	return true, p.store.MarkHandled(ctx, cmd.CID())
}
