package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/vitwit/splitpay/clients"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/metrics"
	"github.com/vitwit/splitpay/receipt"
	"github.com/vitwit/splitpay/transfer"
	"github.com/vitwit/splitpay/types"
)

// Submitter defines the contract for submitting a transfer set and following
// it to finality.
type Submitter interface {
	Submit(ctx context.Context, session *clients.Session, set *types.TransferSet, sink types.ProgressSink) (*types.SubmissionOutcome, error)
}

var _ Submitter = (*Tracker)(nil)

const (
	defaultHeaderRetries  = 3
	defaultHeaderInterval = 250 * time.Millisecond
)

// Tracker drives one submission through Processing, InBlock and Finalized.
// It keeps no state between calls, so one Tracker may serve many payers.
type Tracker struct {
	timeout             time.Duration
	explorerURLTemplate string
	headerRetries       uint64
	newBackOff          func() backoff.BackOff

	logger  logger.Logger
	metrics metrics.Recorder
}

type TrackerOption func(*Tracker)

func WithLogger(l logger.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

func WithMetrics(m metrics.Recorder) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithExplorerURLTemplate sets the template used for receipt links.
func WithExplorerURLTemplate(tmpl string) TrackerOption {
	return func(t *Tracker) {
		t.explorerURLTemplate = tmpl
	}
}

// WithHeaderRetry sets how often and how the block header lookup is retried
// after finality.
func WithHeaderRetry(retries uint64, newBackOff func() backoff.BackOff) TrackerOption {
	return func(t *Tracker) {
		t.headerRetries = retries
		if newBackOff != nil {
			t.newBackOff = newBackOff
		}
	}
}

// NewTracker creates a tracker. A zero timeout waits for as long as ctx allows.
func NewTracker(timeout time.Duration, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		timeout:             timeout,
		explorerURLTemplate: types.DefaultExplorerURLTemplate,
		headerRetries:       defaultHeaderRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = defaultHeaderInterval
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// run is the per-call state of a submission.
type run struct {
	*Tracker

	set   *types.TransferSet
	sink  types.ProgressSink
	state types.SubmissionState
	start time.Time
}

// Submit hands set to the session's signer and chain client, then follows the
// pool statuses until the extrinsic is finalized or fails.
//
// A declined signature resolves to a StateCancelled outcome with a nil error.
// Every other failure returns a *types.SplitpayError after the sink has seen
// ProgressError.
func (t *Tracker) Submit(
	ctx context.Context,
	session *clients.Session,
	set *types.TransferSet,
	sink types.ProgressSink,
) (*types.SubmissionOutcome, error) {
	if sink == nil {
		sink = func(types.ProgressUpdate) {}
	}

	r := &run{
		Tracker: t,
		set:     set,
		sink:    sink,
		state:   types.StateCreated,
		start:   time.Now(),
	}

	if set == nil {
		return nil, r.fail(types.NewMissingFieldError("transferSet"))
	}
	if err := session.Validate(); err != nil {
		return nil, r.fail(err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.logger.Info("submitting transfer set", map[string]any{
		"asset":     set.Asset().Symbol,
		"payer":     set.Payer,
		"recipient": set.Recipient().Destination,
		"total":     set.Total().String(),
	})

	sub, err := session.Client.SubmitTransferSet(ctx, set, session.Signer)
	if err != nil {
		if clients.IsCancellation(err) {
			return r.cancelled(), nil
		}
		return nil, r.fail(types.NewSubmissionFailure(err))
	}
	defer sub.Unsubscribe()

	return r.watch(ctx, session.Client, sub)
}

func (r *run) watch(ctx context.Context, client clients.ChainClient, sub clients.Subscription) (*types.SubmissionOutcome, error) {
	statuses := sub.Statuses()
	errs := sub.Err()

	for {
		select {
		case <-ctx.Done():
			return nil, r.fail(types.NewSubmissionFailure(ctx.Err()))

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return nil, r.fail(types.NewSubmissionFailure(err))

		case ev, ok := <-statuses:
			if !ok {
				return nil, r.fail(types.NewSubmissionFailure(errors.New("status stream closed before finality")))
			}

			r.logger.Debug("extrinsic status", map[string]any{
				"status":    string(ev.Kind),
				"blockHash": ev.BlockHash,
			})

			if ev.DispatchError != nil {
				return nil, r.fail(types.NewDispatchFailure(r.set.Asset().Symbol, ev.DispatchError))
			}
			if ev.Kind.IsPoolFailure() {
				return nil, r.fail(types.NewSubmissionFailure(fmt.Errorf("extrinsic %s", ev.Kind)))
			}

			switch ev.Kind {
			case types.StatusFuture, types.StatusReady, types.StatusBroadcast:
				r.advance(types.StateProcessing, "Processing payment...")

			case types.StatusInBlock:
				r.advance(types.StateProcessing, "Processing payment...")
				r.advance(types.StateInBlock, fmt.Sprintf("Payment included in block %s, waiting for finality...", ev.BlockHash))

			case types.StatusRetracted:
				r.logger.Warn("block retracted, waiting for finality", map[string]any{
					"blockHash": ev.BlockHash,
				})

			case types.StatusFinalized:
				return r.finalize(ctx, client, ev), nil
			}
		}
	}
}

func (r *run) finalize(ctx context.Context, client clients.ChainClient, ev types.StatusEvent) *types.SubmissionOutcome {
	number, err := r.blockNumber(ctx, client, ev.BlockHash)
	if err != nil {
		r.logger.Warn("block header unavailable after finality", map[string]any{
			"blockHash": ev.BlockHash,
			"error":     err.Error(),
		})
	}
	if ev.EventsUnavailable {
		r.logger.Warn("finalized block events unavailable, transfer result unverified", map[string]any{
			"blockHash": ev.BlockHash,
		})
	}

	rc := receipt.Format(receipt.Input{
		Asset:               r.set.Asset(),
		Amount:              r.paidAmount(),
		BlockHash:           ev.BlockHash,
		BlockNumber:         number,
		HeaderUnavailable:   err != nil,
		ExtrinsicIndex:      ExtrinsicIndex(ev.Events),
		Unverified:          ev.EventsUnavailable,
		ExplorerURLTemplate: r.explorerURLTemplate,
		FinalizedAt:         time.Now().UTC(),
	})

	r.advance(types.StateProcessing, "Processing payment...")
	r.advance(types.StateInBlock, fmt.Sprintf("Payment included in block %s, waiting for finality...", ev.BlockHash))
	r.advance(types.StateFinalized, rc.Message)

	labels := map[string]string{"asset": r.set.Asset().Symbol, "outcome": string(types.StateFinalized)}
	r.metrics.IncCounter("submission", labels)
	r.metrics.ObserveLatency("submit_to_finalize", time.Since(r.start), labels)

	r.logger.Info("payment finalized", map[string]any{
		"receiptId":   rc.ID,
		"blockHash":   rc.BlockHash,
		"blockNumber": rc.BlockNumber,
		"unverified":  rc.Unverified,
	})

	return &types.SubmissionOutcome{
		State:   types.StateFinalized,
		Receipt: rc,
	}
}

// blockNumber looks the header up with retries. Retries are silent towards
// the sink.
func (r *run) blockNumber(ctx context.Context, client clients.ChainClient, hash string) (uint64, error) {
	var number uint64

	op := func() error {
		n, err := client.BlockNumber(ctx, hash)
		if err != nil {
			r.logger.Debug("header lookup failed", map[string]any{"blockHash": hash, "error": err.Error()})
			return err
		}
		number = n
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.headerRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}
	return number, nil
}

func (r *run) paidAmount() decimal.Decimal {
	if r.set.Requested.IsPositive() {
		return r.set.Requested
	}
	return transfer.FromAtomic(r.set.Total(), r.set.Asset().Decimals)
}

var stateRank = map[types.SubmissionState]int{
	types.StateCreated:    0,
	types.StateProcessing: 1,
	types.StateInBlock:    2,
	types.StateFinalized:  3,
}

// advance moves forward only, so repeated statuses never reach the sink twice.
func (r *run) advance(to types.SubmissionState, msg string) {
	if r.state.IsTerminal() || stateRank[to] <= stateRank[r.state] {
		return
	}
	r.state = to
	r.sink(types.ProgressUpdate{State: progressOf(to), Message: msg})
}

func (r *run) cancelled() *types.SubmissionOutcome {
	r.state = types.StateCancelled
	r.sink(types.ProgressUpdate{State: types.ProgressCancelled, Message: "Payment cancelled by user"})

	r.metrics.IncCounter("submission", map[string]string{
		"asset":   r.set.Asset().Symbol,
		"outcome": string(types.StateCancelled),
	})
	r.logger.Info("payment cancelled by signer", map[string]any{"payer": r.set.Payer})

	return &types.SubmissionOutcome{State: types.StateCancelled}
}

func (r *run) fail(err error) error {
	r.state = types.StateFailed
	r.sink(types.ProgressUpdate{State: types.ProgressError, Message: err.Error()})

	asset := ""
	if r.set != nil {
		asset = r.set.Asset().Symbol
	}
	r.metrics.IncCounter("submission", map[string]string{
		"asset":   asset,
		"outcome": string(types.StateFailed),
	})
	r.logger.Error("payment failed", map[string]any{"asset": asset, "error": err.Error()})

	return err
}

func progressOf(s types.SubmissionState) types.ProgressState {
	switch s {
	case types.StateProcessing:
		return types.ProgressProcessing
	case types.StateInBlock:
		return types.ProgressInBlock
	case types.StateFinalized:
		return types.ProgressFinalized
	case types.StateCancelled:
		return types.ProgressCancelled
	default:
		return types.ProgressError
	}
}

// ExtrinsicIndex returns the index of the first system.ExtrinsicSuccess event
// emitted in an ApplyExtrinsic phase, or nil.
func ExtrinsicIndex(events []types.ChainEvent) *uint32 {
	for _, ev := range events {
		if strings.EqualFold(ev.Section, "system") && ev.Method == "ExtrinsicSuccess" && ev.ApplyExtrinsic != nil {
			idx := *ev.ApplyExtrinsic
			return &idx
		}
	}
	return nil
}
