package escrow

import "context"

// Transfer is the token movement capability the engine consumes. The engine
// updates its own ledger before calling TransferOut and only commits when the
// transfer succeeded, so a failing transfer rolls the whole operation back.
type Transfer interface {
	// TransferIn pulls amount of currency from the payer into custody.
	TransferIn(ctx context.Context, from, currency string, amount int64) error
	// TransferOut pays amount of currency from custody to the recipient.
	TransferOut(ctx context.Context, to, currency string, amount int64) error
}

// NoopTransfer satisfies Transfer without moving tokens. Used when custody is
// handled out of band and in tests.
type NoopTransfer struct{}

// TransferIn is a no-op.
func (NoopTransfer) TransferIn(ctx context.Context, from, currency string, amount int64) error {
	return nil
}

// TransferOut is a no-op.
func (NoopTransfer) TransferOut(ctx context.Context, to, currency string, amount int64) error {
	return nil
}
