package clients

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/vitwit/splitpay/types"
)

const (
	// assetsPalletIndex is the Assets pallet on Asset Hub; fee assets are
	// located as (PalletInstance, GeneralIndex) under it.
	assetsPalletIndex = 50

	extrinsicVersion  = 4
	signedFlag        = 0x80
	multiAddressID    = 0x00
	multiSigSr25519   = 0x01
	eraImmortal       = 0x00
	optionNone        = 0x00
	optionSome        = 0x01
	junctionsX2       = 0x02
	junctionPallet    = 0x04
	junctionGeneralID = 0x05
)

// signingParams holds the per-transaction values the signed extensions carry.
type signingParams struct {
	genesis     gstypes.Hash
	specVersion uint32
	txVersion   uint32
	nonce       uint64
	feeAsset    *types.Asset
}

// extensionData encodes the runtime's signed extensions in metadata order.
// extra travels inside the extrinsic; additional is only signed over.
// Transactions are immortal and carry no tip.
func extensionData(meta *gstypes.Metadata, p signingParams) (extra, additional []byte, err error) {
	if meta == nil {
		return nil, nil, fmt.Errorf("runtime metadata not loaded")
	}

	nonNativeFee := p.feeAsset != nil && !p.feeAsset.Native
	feeEncoded := false

	var e, a bytes.Buffer
	for _, ext := range meta.AsMetadataV14.Extrinsic.SignedExtensions {
		switch id := string(ext.Identifier); id {
		case "CheckNonZeroSender", "CheckWeight":
		case "CheckSpecVersion":
			a.Write(u32LE(p.specVersion))
		case "CheckTxVersion":
			a.Write(u32LE(p.txVersion))
		case "CheckGenesis":
			a.Write(p.genesis[:])
		case "CheckMortality", "CheckEra":
			e.WriteByte(eraImmortal)
			a.Write(p.genesis[:])
		case "CheckNonce":
			if err := writeCompact(&e, new(big.Int).SetUint64(p.nonce)); err != nil {
				return nil, nil, err
			}
		case "ChargeAssetTxPayment":
			if err := writeCompact(&e, big.NewInt(0)); err != nil {
				return nil, nil, err
			}
			loc, err := encodeFeeAsset(p.feeAsset)
			if err != nil {
				return nil, nil, err
			}
			e.Write(loc)
			feeEncoded = true
		case "ChargeTransactionPayment":
			if err := writeCompact(&e, big.NewInt(0)); err != nil {
				return nil, nil, err
			}
		case "CheckMetadataHash":
			// mode disabled, no metadata hash
			e.WriteByte(0)
			a.WriteByte(optionNone)
		default:
			if !isEmptyType(meta, ext.Type) || !isEmptyType(meta, ext.AdditionalSigned) {
				return nil, nil, fmt.Errorf("unsupported signed extension %s", id)
			}
		}
	}

	if nonNativeFee && !feeEncoded {
		return nil, nil, &types.SplitpayError{
			Code:    types.ErrUnsupportedAsset,
			Message: fmt.Sprintf("runtime does not accept fees in %s", p.feeAsset.Symbol),
		}
	}
	return e.Bytes(), a.Bytes(), nil
}

// encodeFeeAsset encodes the Option<Location> of ChargeAssetTxPayment. A nil
// or native asset is None, meaning the fee is paid in the native token.
func encodeFeeAsset(asset *types.Asset) ([]byte, error) {
	if asset == nil || asset.Native {
		return []byte{optionNone}, nil
	}

	var buf bytes.Buffer
	buf.Write([]byte{optionSome, 0, junctionsX2, junctionPallet, assetsPalletIndex, junctionGeneralID})
	if err := writeCompact(&buf, new(big.Int).SetUint64(uint64(asset.ID))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// signExtrinsic signs call‖extra‖additional and assembles a v4 signed
// extrinsic. Payloads over 256 bytes are hashed by signature.Sign.
func signExtrinsic(pair signature.KeyringPair, call gstypes.Call, extra, additional []byte) ([]byte, error) {
	callBytes, err := encodeCall(call)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(callBytes)+len(extra)+len(additional))
	payload = append(payload, callBytes...)
	payload = append(payload, extra...)
	payload = append(payload, additional...)

	sig, err := signature.Sign(payload, pair.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to sign extrinsic: %w", err)
	}
	return assembleExtrinsic(pair.PublicKey, sig, extra, callBytes)
}

// assembleExtrinsic lays out a signed extrinsic with its length prefix.
func assembleExtrinsic(pubKey, sig, extra, call []byte) ([]byte, error) {
	if len(pubKey) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(pubKey))
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("signature must be 64 bytes, got %d", len(sig))
	}

	var body bytes.Buffer
	body.WriteByte(signedFlag | extrinsicVersion)
	body.WriteByte(multiAddressID)
	body.Write(pubKey)
	body.WriteByte(multiSigSr25519)
	body.Write(sig)
	body.Write(extra)
	body.Write(call)

	var out bytes.Buffer
	if err := writeCompact(&out, big.NewInt(int64(body.Len()))); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func encodeCall(call gstypes.Call) ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(call); err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}
	return buf.Bytes(), nil
}

// isEmptyType reports whether id resolves to a zero-sized type: () or a
// struct without fields.
func isEmptyType(meta *gstypes.Metadata, id gstypes.Si1LookupTypeID) bool {
	typ, ok := meta.AsMetadataV14.EfficientLookup[id.Int64()]
	if !ok {
		return false
	}
	switch {
	case typ.Def.IsTuple:
		return len(typ.Def.Tuple) == 0
	case typ.Def.IsComposite:
		return len(typ.Def.Composite.Fields) == 0
	}
	return false
}

func writeCompact(buf *bytes.Buffer, v *big.Int) error {
	return scale.NewEncoder(buf).EncodeUintCompact(*v)
}

func u32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
