package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/splitpay/logger"
	"github.com/vitwit/splitpay/types"
	"golang.org/x/crypto/blake2b"
)

// PolkadotSS58Prefix is the address format of Polkadot and its system chains.
const PolkadotSS58Prefix uint16 = 0

// SubstrateSigner signs with a local sr25519 keypair.
type SubstrateSigner struct {
	pair signature.KeyringPair
}

// NewSubstrateSigner derives a keypair from a secret seed, mnemonic or dev URI
// such as "//Alice".
func NewSubstrateSigner(secret string, ss58Prefix uint16) (*SubstrateSigner, error) {
	pair, err := signature.KeyringPairFromSecret(secret, ss58Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	return &SubstrateSigner{pair: pair}, nil
}

func (s *SubstrateSigner) Address() string {
	return s.pair.Address
}

// SubstrateClient talks to an Asset Hub node over JSON-RPC.
type SubstrateClient struct {
	api       *gsrpc.SubstrateAPI
	meta      *gstypes.Metadata
	genesis   gstypes.Hash
	events    retriever.EventRetriever
	network   string
	logger    logger.Logger
	closeOnce sync.Once

	// loadEvents reads the events of an extrinsic; retried per eventRetries.
	loadEvents   func(block gstypes.Hash, extHash [32]byte) ([]types.ChainEvent, *types.DispatchError, error)
	eventRetries uint64
	newBackOff   func() backoff.BackOff
}

const (
	defaultEventRetries  = 3
	defaultEventInterval = 500 * time.Millisecond
)

// SubstrateOption configures a SubstrateClient.
type SubstrateOption func(*SubstrateClient)

func WithSubstrateLogger(l logger.Logger) SubstrateOption {
	return func(c *SubstrateClient) {
		c.logger = l
	}
}

// NewSubstrateClient connects to url and loads the runtime metadata.
func NewSubstrateClient(url string, opts ...SubstrateOption) (*SubstrateClient, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("failed to connect to %s: %v", url, err),
		}
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to get genesis hash: %w", err)
	}

	events, err := retriever.NewDefaultEventRetriever(state.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to build event retriever: %w", err)
	}

	c := &SubstrateClient{
		api:     api,
		meta:    meta,
		genesis: genesis,
		events:  events,
		network: url,
		logger:  logger.NoopLogger{},

		eventRetries: defaultEventRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = defaultEventInterval
			b.MaxInterval = 4 * time.Second
			return b
		},
	}
	c.loadEvents = c.extrinsicEvents
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("connected to substrate node", map[string]any{
		"url":     url,
		"genesis": genesis.Hex(),
	})

	return c, nil
}

func (c *SubstrateClient) GetNetwork() string {
	return c.network
}

// Balance implements ChainClient. Native balances come from System.Account,
// asset balances from Assets.Account.
func (c *SubstrateClient) Balance(ctx context.Context, asset types.Asset, account string) (*big.Int, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	accountID, err := DecodeAddress(account)
	if err != nil {
		return nil, false, err
	}

	if asset.Native {
		key, err := gstypes.CreateStorageKey(c.meta, "System", "Account", accountID.ToBytes())
		if err != nil {
			return nil, false, fmt.Errorf("failed to create storage key: %w", err)
		}

		var info gstypes.AccountInfo
		ok, err := c.api.RPC.State.GetStorageLatest(key, &info)
		if err != nil {
			return nil, false, types.NewNetworkError("query System.Account", err)
		}
		if !ok {
			return big.NewInt(0), false, nil
		}
		return info.Data.Free.Int, true, nil
	}

	assetID, err := codec.Encode(gstypes.NewU32(asset.ID))
	if err != nil {
		return nil, false, err
	}

	key, err := gstypes.CreateStorageKey(c.meta, "Assets", "Account", assetID, accountID.ToBytes())
	if err != nil {
		return nil, false, fmt.Errorf("failed to create storage key: %w", err)
	}

	raw, err := c.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return nil, false, types.NewNetworkError("query Assets.Account", err)
	}
	if raw == nil || len(*raw) == 0 {
		return big.NewInt(0), false, nil
	}

	bal, err := decodeAssetBalance(*raw)
	if err != nil {
		return nil, false, err
	}
	return bal, true, nil
}

// BlockNumber implements ChainClient.
func (c *SubstrateClient) BlockNumber(ctx context.Context, blockHash string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	hash, err := gstypes.NewHashFromHexString(blockHash)
	if err != nil {
		return 0, fmt.Errorf("invalid block hash %q: %w", blockHash, err)
	}

	header, err := c.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return 0, types.NewNetworkError("get header", err)
	}
	return uint64(header.Number), nil
}

// SubmitTransferSet implements ChainClient: the two legs are wrapped in
// Utility.batch_all so they succeed or fail together. A non-native FeeAsset
// is passed to ChargeAssetTxPayment so the fee leaves that balance.
func (c *SubstrateClient) SubmitTransferSet(ctx context.Context, set *types.TransferSet, signer Signer) (Subscription, error) {
	if set == nil {
		return nil, types.NewMissingFieldError("transferSet")
	}

	signer, err := authorize(ctx, set, signer)
	if err != nil {
		return nil, err
	}
	ss, ok := signer.(*SubstrateSigner)
	if !ok {
		return nil, fmt.Errorf("substrate client: unsupported signer %T", signer)
	}

	call, err := c.batchCall(set)
	if err != nil {
		return nil, err
	}

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, types.NewNetworkError("get runtime version", err)
	}

	// includes transactions still in the pool, unlike System.Account
	var nonce uint64
	if err := c.api.Client.Call(&nonce, "system_accountNextIndex", ss.pair.Address); err != nil {
		return nil, types.NewNetworkError("get account nonce", err)
	}

	extra, additional, err := extensionData(c.meta, signingParams{
		genesis:     c.genesis,
		specVersion: uint32(rv.SpecVersion),
		txVersion:   uint32(rv.TransactionVersion),
		nonce:       nonce,
		feeAsset:    set.FeeAsset,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := signExtrinsic(ss.pair, call, extra, additional)
	if err != nil {
		return nil, err
	}
	extHash := blake2b.Sum256(encoded)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statuses := make(chan gstypes.ExtrinsicStatus)
	watch, err := c.api.Client.Subscribe(ctx, "author", "submitAndWatchExtrinsic", "unwatchExtrinsic",
		"extrinsicUpdate", statuses, hexutil.Encode(encoded))
	if err != nil {
		return nil, types.NewNetworkError("submit extrinsic", err)
	}

	fields := map[string]any{
		"hash":  hexutil.Encode(extHash[:]),
		"payer": set.Payer,
		"nonce": nonce,
	}
	if set.FeeAsset != nil {
		fields["feeAsset"] = set.FeeAsset.Symbol
	}
	c.logger.Info("extrinsic submitted", fields)

	return c.newSubscription(watch, statuses, extHash), nil
}

func (c *SubstrateClient) batchCall(set *types.TransferSet) (gstypes.Call, error) {
	calls := make([]gstypes.Call, 0, len(set.Legs))
	for _, leg := range set.Legs {
		call, err := c.transferCall(leg)
		if err != nil {
			return gstypes.Call{}, err
		}
		calls = append(calls, call)
	}

	batch, err := gstypes.NewCall(c.meta, "Utility.batch_all", calls)
	if err != nil {
		return gstypes.Call{}, fmt.Errorf("failed to build batch: %w", err)
	}
	return batch, nil
}

func (c *SubstrateClient) transferCall(leg types.TransferLeg) (gstypes.Call, error) {
	dest, err := DecodeAddress(leg.Destination)
	if err != nil {
		return gstypes.Call{}, err
	}
	addr, err := gstypes.NewMultiAddressFromAccountID(dest.ToBytes())
	if err != nil {
		return gstypes.Call{}, err
	}
	amount := gstypes.NewUCompact(leg.Amount)

	if leg.Asset.Native {
		return gstypes.NewCall(c.meta, "Balances.transfer_allow_death", addr, amount)
	}
	return gstypes.NewCall(c.meta, "Assets.transfer", gstypes.NewUCompactFromUInt(uint64(leg.Asset.ID)), addr, amount)
}

// Close closes the websocket connection.
func (c *SubstrateClient) Close() {
	c.closeOnce.Do(func() {
		c.api.Client.Close()
	})
}

// DecodeAddress converts an SS58 address into an account id.
func DecodeAddress(address string) (*gstypes.AccountID, error) {
	_, pub, err := ss58Decode(address)
	if err != nil {
		return nil, &types.SplitpayError{
			Code:    types.ErrMissingField,
			Message: fmt.Sprintf("invalid address %q: %v", address, err),
		}
	}
	return gstypes.NewAccountID(pub)
}

// decodeAssetBalance reads the balance from an encoded Assets.Account entry.
// The balance is the leading u128; the remaining fields are not needed.
func decodeAssetBalance(raw []byte) (*big.Int, error) {
	if len(raw) < 16 {
		return nil, errors.New("asset account entry too short")
	}
	var bal gstypes.U128
	if err := codec.Decode(raw[:16], &bal); err != nil {
		return nil, fmt.Errorf("failed to decode asset balance: %w", err)
	}
	return bal.Int, nil
}
