package clients

import (
	"context"

	"github.com/vitwit/splitpay/types"
)

// Confirm asks the user to approve set before it is signed.
type Confirm func(ctx context.Context, set *types.TransferSet) (bool, error)

// ConfirmingSigner puts an approval step in front of another signer. A
// declined approval is reported as types.ErrSignerCancelled, exactly like a
// wallet closing its prompt.
type ConfirmingSigner struct {
	Signer
	Confirm Confirm
}

// authorize resolves the signer a chain client should sign with, running any
// approval steps first.
func authorize(ctx context.Context, set *types.TransferSet, signer Signer) (Signer, error) {
	for {
		cs, ok := signer.(*ConfirmingSigner)
		if !ok {
			return signer, nil
		}
		if cs.Confirm != nil {
			approved, err := cs.Confirm(ctx, set)
			if err != nil {
				return nil, err
			}
			if !approved {
				return nil, types.ErrSignerCancelled
			}
		}
		signer = cs.Signer
	}
}
