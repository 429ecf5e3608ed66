package clients

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gethrpc "github.com/centrifuge/go-substrate-rpc-client/v4/gethrpc"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vedhavyas/go-subkey/v2"
	"github.com/vitwit/splitpay/types"
	"golang.org/x/crypto/blake2b"
)

func ss58Decode(address string) (uint16, []byte, error) {
	return subkey.SS58Decode(address)
}

type substrateSubscription struct {
	statuses chan types.StatusEvent
	errs     chan error
	done     chan struct{}
	once     sync.Once
	cancel   context.CancelFunc
	watch    *gethrpc.ClientSubscription
}

// newSubscription forwards pool statuses from an author_submitAndWatchExtrinsic
// subscription. The raw channel is never closed by the RPC layer; the end of
// the stream is signalled by the subscription's error channel closing.
func (c *SubstrateClient) newSubscription(watch *gethrpc.ClientSubscription, raw <-chan gstypes.ExtrinsicStatus, extHash [32]byte) *substrateSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &substrateSubscription{
		statuses: make(chan types.StatusEvent),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
		watch:    watch,
	}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case err, ok := <-watch.Err():
				if !ok || err == nil {
					close(sub.statuses)
					return
				}
				// statuses stays open so the error is not mistaken for the
				// end of the stream
				sub.errs <- err
				return
			case st := <-raw:
				ev := c.convertStatus(ctx, st, extHash)
				select {
				case sub.statuses <- ev:
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub
}

func (s *substrateSubscription) Statuses() <-chan types.StatusEvent { return s.statuses }
func (s *substrateSubscription) Err() <-chan error                  { return s.errs }

func (s *substrateSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.watch.Unsubscribe()
	})
}

// convertStatus maps a pool status to a StatusEvent. For InBlock and
// Finalized it also loads the events of our extrinsic, retrying transient
// failures. When the events stay unreadable the event is flagged
// EventsUnavailable so the dispatch result is not taken for granted.
func (c *SubstrateClient) convertStatus(ctx context.Context, st gstypes.ExtrinsicStatus, extHash [32]byte) types.StatusEvent {
	ev := types.StatusEvent{Kind: statusKind(st)}

	var block gstypes.Hash
	switch {
	case st.IsInBlock:
		block = st.AsInBlock
	case st.IsFinalized:
		block = st.AsFinalized
	case st.IsRetracted:
		ev.BlockHash = st.AsRetracted.Hex()
		return ev
	default:
		return ev
	}
	ev.BlockHash = block.Hex()

	var (
		events      []types.ChainEvent
		dispatchErr *types.DispatchError
	)
	load := func() error {
		var err error
		events, dispatchErr, err = c.loadEvents(block, extHash)
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("retrying extrinsic events", map[string]any{
			"blockHash": ev.BlockHash,
			"error":     err.Error(),
			"next":      next.String(),
		})
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.eventRetries), ctx)
	if err := backoff.RetryNotify(load, b, notify); err != nil {
		c.logger.Warn("failed to load extrinsic events", map[string]any{
			"blockHash": ev.BlockHash,
			"status":    string(ev.Kind),
			"error":     err.Error(),
		})
		ev.EventsUnavailable = true
		return ev
	}
	ev.Events = events
	ev.DispatchError = dispatchErr
	return ev
}

func statusKind(st gstypes.ExtrinsicStatus) types.StatusKind {
	switch {
	case st.IsFuture:
		return types.StatusFuture
	case st.IsReady:
		return types.StatusReady
	case st.IsBroadcast:
		return types.StatusBroadcast
	case st.IsInBlock:
		return types.StatusInBlock
	case st.IsRetracted:
		return types.StatusRetracted
	case st.IsFinalityTimeout:
		return types.StatusFinalityTimeout
	case st.IsFinalized:
		return types.StatusFinalized
	case st.IsUsurped:
		return types.StatusUsurped
	case st.IsDropped:
		return types.StatusDropped
	default:
		return types.StatusInvalid
	}
}

type rpcBlock struct {
	Block struct {
		Extrinsics []string `json:"extrinsics"`
	} `json:"block"`
}

// extrinsicIndex finds the position of the extrinsic with hash extHash in
// block by hashing every extrinsic the block contains.
func (c *SubstrateClient) extrinsicIndex(block gstypes.Hash, extHash [32]byte) (uint32, error) {
	var res rpcBlock
	if err := c.api.Client.Call(&res, "chain_getBlock", block.Hex()); err != nil {
		return 0, types.NewNetworkError("get block", err)
	}
	return matchExtrinsic(res.Block.Extrinsics, extHash)
}

func matchExtrinsic(extrinsics []string, extHash [32]byte) (uint32, error) {
	for i, hex := range extrinsics {
		raw, err := hexutil.Decode(hex)
		if err != nil {
			return 0, fmt.Errorf("extrinsic %d: %w", i, err)
		}
		h := blake2b.Sum256(raw)
		if bytes.Equal(h[:], extHash[:]) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("extrinsic %s not found in block", hexutil.Encode(extHash[:]))
}

func (c *SubstrateClient) extrinsicEvents(block gstypes.Hash, extHash [32]byte) ([]types.ChainEvent, *types.DispatchError, error) {
	idx, err := c.extrinsicIndex(block, extHash)
	if err != nil {
		return nil, nil, err
	}

	all, err := c.events.GetEvents(block)
	if err != nil {
		return nil, nil, types.NewNetworkError("get events", err)
	}

	var (
		out         []types.ChainEvent
		dispatchErr *types.DispatchError
	)
	for _, e := range all {
		if e.Phase == nil || !e.Phase.IsApplyExtrinsic || uint32(e.Phase.AsApplyExtrinsic) != idx {
			continue
		}

		section, method := splitEventName(e.Name)
		i := idx
		out = append(out, types.ChainEvent{Section: section, Method: method, ApplyExtrinsic: &i})

		if section == "system" && method == "ExtrinsicFailed" {
			dispatchErr = c.dispatchError(e)
		}
	}
	return out, dispatchErr, nil
}

// splitEventName turns "System.ExtrinsicSuccess" into ("system",
// "ExtrinsicSuccess").
func splitEventName(name string) (section, method string) {
	section, method, found := strings.Cut(name, ".")
	if !found {
		return "", name
	}
	return lowerFirst(section), method
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func (c *SubstrateClient) dispatchError(e *parser.Event) *types.DispatchError {
	pallet, index, ok := findModuleError(e.Fields)
	if !ok {
		return &types.DispatchError{Raw: fmt.Sprintf("%s %s", e.Name, describeFields(e.Fields))}
	}
	if de, ok := resolveModuleError(c.meta, pallet, index); ok {
		return de
	}
	return &types.DispatchError{Raw: fmt.Sprintf("module error %d:%d", pallet, index)}
}

// findModuleError walks decoded event fields looking for the ModuleError
// {index, error} pair.
func findModuleError(v any) (pallet, index uint8, ok bool) {
	fields, isFields := asDecodedFields(v)
	if !isFields {
		return 0, 0, false
	}

	var hasPallet, hasIndex bool
	for _, f := range fields {
		if f == nil {
			continue
		}
		switch f.Name {
		case "index":
			pallet, hasPallet = toU8(f.Value)
		case "error":
			index, hasIndex = toU8(f.Value)
		}
	}
	if hasPallet && hasIndex {
		return pallet, index, true
	}

	for _, f := range fields {
		if f == nil {
			continue
		}
		if p, i, found := findModuleError(f.Value); found {
			return p, i, true
		}
	}
	return 0, 0, false
}

func asDecodedFields(v any) (registry.DecodedFields, bool) {
	switch fv := v.(type) {
	case registry.DecodedFields:
		return fv, true
	case []*registry.DecodedField:
		return fv, true
	}
	return nil, false
}

// toU8 accepts the shapes the registry decoder produces for a u8 or for the
// [u8; 4] error payload, whose first byte is the error index.
func toU8(v any) (uint8, bool) {
	switch n := v.(type) {
	case gstypes.U8:
		return uint8(n), true
	case uint8:
		return n, true
	case []gstypes.U8:
		if len(n) > 0 {
			return uint8(n[0]), true
		}
	case [4]gstypes.U8:
		return uint8(n[0]), true
	case []byte:
		if len(n) > 0 {
			return n[0], true
		}
	case [4]byte:
		return n[0], true
	case []any:
		if len(n) > 0 {
			return toU8(n[0])
		}
	}
	return 0, false
}

func describeFields(fields registry.DecodedFields) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", f.Name, f.Value))
		}
	}
	return strings.Join(parts, " ")
}

// resolveModuleError looks the pallet and error variant up in the runtime
// metadata.
func resolveModuleError(meta *gstypes.Metadata, pallet, index uint8) (*types.DispatchError, bool) {
	if meta == nil {
		return nil, false
	}

	for _, p := range meta.AsMetadataV14.Pallets {
		if uint8(p.Index) != pallet || !p.HasErrors {
			continue
		}

		de := &types.DispatchError{Section: lowerFirst(string(p.Name))}

		typ, ok := meta.AsMetadataV14.EfficientLookup[p.Errors.Type.Int64()]
		if !ok || !typ.Def.IsVariant {
			return de, true
		}
		for _, variant := range typ.Def.Variant.Variants {
			if uint8(variant.Index) != index {
				continue
			}
			de.Name = string(variant.Name)
			for _, doc := range variant.Docs {
				de.Docs = append(de.Docs, string(doc))
			}
			return de, true
		}
		return de, true
	}
	return nil, false
}
