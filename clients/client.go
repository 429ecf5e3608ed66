package clients

import (
	"context"
	"math/big"

	"github.com/vitwit/splitpay/types"
)

// ChainClient is everything the orchestrator needs from the settlement layer.
type ChainClient interface {
	// Balance returns the free balance of account in atomic units. found is
	// false when the account holds no record for asset.
	Balance(ctx context.Context, asset types.Asset, account string) (balance *big.Int, found bool, err error)

	// SubmitTransferSet signs set with signer and submits it as a single
	// atomic batch. Signing happens before broadcast; a declined signature
	// surfaces as types.ErrSignerCancelled.
	SubmitTransferSet(ctx context.Context, set *types.TransferSet, signer Signer) (Subscription, error)

	// BlockNumber resolves a block hash to its number.
	BlockNumber(ctx context.Context, blockHash string) (uint64, error)

	GetNetwork() string
	Close()
}

// Subscription is the finite, ordered stream of pool statuses for one
// submitted extrinsic.
type Subscription interface {
	Statuses() <-chan types.StatusEvent
	Err() <-chan error
	Unsubscribe()
}

// Signer is the opaque credential obtained from a wallet. The orchestrator
// never opens it; chain clients type-assert the concrete signer they support.
type Signer interface {
	Address() string
}

// ReceiptConsumer renders, stores or shares a finalized receipt.
type ReceiptConsumer interface {
	Consume(ctx context.Context, receipt *types.Receipt) error
}
