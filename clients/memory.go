package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vitwit/splitpay/types"
)

// DefaultMemoryExtrinsicIndex is the position the in-memory chain gives every
// submitted batch inside its block.
const DefaultMemoryExtrinsicIndex uint32 = 2

// MemorySigner is the signer MemoryClient accepts.
type MemorySigner struct {
	Account string

	// Decline makes signing fail with types.ErrSignerCancelled.
	Decline bool
	// Err, when set, is returned from signing as is. Used to emulate wallets
	// that report cancellation only through the error text.
	Err error
}

func (s *MemorySigner) Address() string {
	return s.Account
}

// Script overrides the default behaviour of the next submission.
type Script struct {
	// SubmitErr is returned from SubmitTransferSet.
	SubmitErr error
	// Statuses are delivered verbatim, in order.
	Statuses []types.StatusEvent
	// StreamErr is delivered on the Err channel after the statuses.
	StreamErr error
	// BlockNumber is registered for every block hash found in Statuses.
	BlockNumber uint64
	// Hold keeps the stream open after the last status until unsubscribed.
	Hold bool
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithMemoryFees sets the network fee charged per submission, in atomic
// units of the native asset and of the fee asset respectively.
func WithMemoryFees(native, feeAsset *big.Int) MemoryOption {
	return func(c *MemoryClient) {
		c.nativeFee = new(big.Int).Set(native)
		c.assetFee = new(big.Int).Set(feeAsset)
	}
}

// WithMemoryExtrinsicIndex sets the extrinsic index reported in success
// events.
func WithMemoryExtrinsicIndex(idx uint32) MemoryOption {
	return func(c *MemoryClient) {
		c.extrinsicIndex = idx
	}
}

// WithMemoryStartBlock sets the number of the last block already produced.
func WithMemoryStartBlock(n uint64) MemoryOption {
	return func(c *MemoryClient) {
		c.block = n
	}
}

// MemoryClient is an in-memory ledger implementing ChainClient. Unless a
// Script is queued, each submission is applied atomically in a fresh block
// and reported through Ready, InBlock and Finalized statuses.
type MemoryClient struct {
	mu sync.Mutex

	balances       map[string]map[string]*big.Int
	headers        map[string]uint64
	block          uint64
	extrinsicIndex uint32
	nativeFee      *big.Int
	assetFee       *big.Int

	scripts        []Script
	headerFailures int
	balanceErr     error
	submitted      []*types.TransferSet
	closed         bool
}

// NewMemoryClient creates an empty in-memory chain.
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{
		balances:       make(map[string]map[string]*big.Int),
		headers:        make(map[string]uint64),
		block:          1000,
		extrinsicIndex: DefaultMemoryExtrinsicIndex,
		nativeFee:      big.NewInt(0),
		assetFee:       big.NewInt(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func assetKey(asset types.Asset) string {
	if asset.Native {
		return "native"
	}
	return fmt.Sprintf("asset:%d", asset.ID)
}

// Fund credits amount atomic units of asset to account.
func (c *MemoryClient) Fund(asset types.Asset, account string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(assetKey(asset), account, amount)
}

// Queue makes the next submissions follow the given scripts, in order.
func (c *MemoryClient) Queue(scripts ...Script) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, scripts...)
}

// FailHeaders makes the next n BlockNumber calls fail.
func (c *MemoryClient) FailHeaders(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerFailures = n
}

// FailBalances makes every Balance call fail with err until called with nil.
func (c *MemoryClient) FailBalances(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErr = err
}

// Submitted returns the transfer sets accepted so far.
func (c *MemoryClient) Submitted() []*types.TransferSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.TransferSet, len(c.submitted))
	copy(out, c.submitted)
	return out
}

func (c *MemoryClient) GetNetwork() string {
	return "memory"
}

// Balance implements ChainClient.
func (c *MemoryClient) Balance(ctx context.Context, asset types.Asset, account string) (*big.Int, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balanceErr != nil {
		return nil, false, c.balanceErr
	}

	bal, ok := c.balances[assetKey(asset)][account]
	if !ok {
		return big.NewInt(0), false, nil
	}
	return new(big.Int).Set(bal), true, nil
}

// BlockNumber implements ChainClient.
func (c *MemoryClient) BlockNumber(ctx context.Context, blockHash string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.headerFailures > 0 {
		c.headerFailures--
		return 0, &types.SplitpayError{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("header %s unavailable", blockHash),
		}
	}

	n, ok := c.headers[blockHash]
	if !ok {
		return 0, &types.SplitpayError{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("unknown block %s", blockHash),
		}
	}
	return n, nil
}

// SubmitTransferSet implements ChainClient.
func (c *MemoryClient) SubmitTransferSet(ctx context.Context, set *types.TransferSet, signer Signer) (Subscription, error) {
	if set == nil {
		return nil, types.NewMissingFieldError("transferSet")
	}

	signer, err := authorize(ctx, set, signer)
	if err != nil {
		return nil, err
	}

	ms, ok := signer.(*MemorySigner)
	if !ok {
		return nil, fmt.Errorf("memory client: unsupported signer %T", signer)
	}
	if ms.Decline {
		return nil, types.ErrSignerCancelled
	}
	if ms.Err != nil {
		return nil, ms.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("memory client: closed")
	}

	if len(c.scripts) > 0 {
		script := c.scripts[0]
		c.scripts = c.scripts[1:]
		if script.SubmitErr != nil {
			return nil, script.SubmitErr
		}
		c.submitted = append(c.submitted, set)
		for _, st := range script.Statuses {
			if st.BlockHash != "" {
				c.headers[st.BlockHash] = script.BlockNumber
			}
		}
		return newMemorySubscription(script.Statuses, script.StreamErr, script.Hold), nil
	}

	c.submitted = append(c.submitted, set)
	return newMemorySubscription(c.apply(set), nil, false), nil
}

// apply executes set in a new block and returns the statuses a node would
// report for it. Caller holds c.mu.
func (c *MemoryClient) apply(set *types.TransferSet) []types.StatusEvent {
	c.block++
	hash := fmt.Sprintf("0x%064x", c.block)
	c.headers[hash] = c.block
	idx := c.extrinsicIndex

	c.chargeFee(set)

	key := assetKey(set.Asset())
	var dispatchErr *types.DispatchError
	if c.balanceOf(key, set.Payer).Cmp(set.Total()) < 0 {
		dispatchErr = insufficientBalance(set.Asset())
	} else {
		for _, leg := range set.Legs {
			c.debit(key, set.Payer, leg.Amount)
			c.credit(key, leg.Destination, leg.Amount)
		}
	}

	events := []types.ChainEvent{{Section: "system", Method: "ExtrinsicSuccess", ApplyExtrinsic: &idx}}
	if dispatchErr != nil {
		events = []types.ChainEvent{{Section: "system", Method: "ExtrinsicFailed", ApplyExtrinsic: &idx}}
	}

	return []types.StatusEvent{
		{Kind: types.StatusReady},
		{Kind: types.StatusInBlock, BlockHash: hash, Events: events, DispatchError: dispatchErr},
		{Kind: types.StatusFinalized, BlockHash: hash, Events: events, DispatchError: dispatchErr},
	}
}

func (c *MemoryClient) chargeFee(set *types.TransferSet) {
	if set.FeeAsset != nil && !set.FeeAsset.Native {
		c.debit(assetKey(*set.FeeAsset), set.Payer, c.assetFee)
		return
	}
	c.debit(assetKey(types.AssetDOT), set.Payer, c.nativeFee)
}

func insufficientBalance(asset types.Asset) *types.DispatchError {
	if asset.Native {
		return &types.DispatchError{
			Section: "balances",
			Name:    "InsufficientBalance",
			Docs:    []string{"Balance too low to send value."},
		}
	}
	return &types.DispatchError{
		Section: "assets",
		Name:    "BalanceLow",
		Docs:    []string{"Account balance must be greater than or equal to the transfer amount."},
	}
}

func (c *MemoryClient) balanceOf(key, account string) *big.Int {
	if bal, ok := c.balances[key][account]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (c *MemoryClient) credit(key, account string, amount *big.Int) {
	if c.balances[key] == nil {
		c.balances[key] = make(map[string]*big.Int)
	}
	c.balances[key][account] = new(big.Int).Add(c.balanceOf(key, account), amount)
}

// debit never takes an account below zero.
func (c *MemoryClient) debit(key, account string, amount *big.Int) {
	next := new(big.Int).Sub(c.balanceOf(key, account), amount)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	if c.balances[key] == nil {
		c.balances[key] = make(map[string]*big.Int)
	}
	c.balances[key][account] = next
}

func (c *MemoryClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type memorySubscription struct {
	statuses chan types.StatusEvent
	errs     chan error
	done     chan struct{}
	once     sync.Once
}

func newMemorySubscription(statuses []types.StatusEvent, streamErr error, hold bool) *memorySubscription {
	sub := &memorySubscription{
		statuses: make(chan types.StatusEvent),
		errs:     make(chan error),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(sub.statuses)
		for _, ev := range statuses {
			select {
			case sub.statuses <- ev:
			case <-sub.done:
				return
			}
		}
		if streamErr != nil {
			select {
			case sub.errs <- streamErr:
			case <-sub.done:
			}
			return
		}
		if hold {
			<-sub.done
		}
	}()

	return sub
}

func (s *memorySubscription) Statuses() <-chan types.StatusEvent { return s.statuses }
func (s *memorySubscription) Err() <-chan error                  { return s.errs }

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}
