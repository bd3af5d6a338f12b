package marketplace

import (
	"fmt"
	"math/big"
	"time"

	"dgmarket/core/events"
	"dgmarket/core/types"
	nativecommon "dgmarket/native/common"
)

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(collection string, assetID uint64) (*Listing, bool, error)
	ListingDelete(collection string, assetID uint64) error
	MarketParamsGet() (*Params, error)
	MarketParamsPut(*Params) error
	PausePut(module string, paused bool) error
	Snapshot() int
	RevertToSnapshot(int)
}

// PaymentLedger is the fungible-token collaborator used to settle purchases
// and payouts.
type PaymentLedger interface {
	TokenBalance(symbol string, addr [20]byte) (*big.Int, error)
	TokenTransfer(symbol string, from, to [20]byte, amount *big.Int) error
	TokenTransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

// AssetRegistry is the non-fungible collaborator holding asset custody.
type AssetRegistry interface {
	AssetOwner(collection string, assetID uint64) ([20]byte, error)
	AssetTransfer(collection string, caller [20]byte, assetID uint64, from, to [20]byte) error
}

type marketplaceEvent struct {
	evt *types.Event
}

func (e marketplaceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketplaceEvent) Event() *types.Event { return e.evt }

// Engine owns the listing table and settles fixed-price sales against the
// payment ledger and asset registry. Every batch operation executes against a
// state snapshot and is rolled back wholesale on any failure. Events are
// queued during the operation; the caller drains them with FlushEvents once
// the surrounding commit has succeeded, or drops them with DiscardEvents, so
// a failed operation never produces notifications.
type Engine struct {
	state    engineState
	ledger   PaymentLedger
	registry AssetRegistry
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	module   [20]byte
	nowFn    func() int64
	pending  []*types.Event
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		module:  ModuleAddress(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the payment ledger collaborator.
func (e *Engine) SetLedger(ledger PaymentLedger) { e.ledger = ledger }

// SetRegistry configures the asset registry collaborator.
func (e *Engine) SetRegistry(registry AssetRegistry) { e.registry = registry }

// SetPauses configures the module pause view consulted by mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAccount returns the address holding escrowed assets for the engine.
func (e *Engine) ModuleAccount() [20]byte { return e.module }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return ErrNilState
	case e.ledger == nil:
		return ErrNilLedger
	case e.registry == nil:
		return ErrNilRegistry
	}
	return nil
}

func (e *Engine) queue(buffered ...*types.Event) {
	if e == nil {
		return
	}
	for _, evt := range buffered {
		if evt == nil {
			continue
		}
		e.pending = append(e.pending, evt)
	}
}

// FlushEvents emits every queued event and clears the queue. Callers invoke
// it only after the operation's state changes have been durably committed.
func (e *Engine) FlushEvents() {
	if e == nil {
		return
	}
	if e.emitter != nil {
		for _, evt := range e.pending {
			e.emitter.Emit(marketplaceEvent{evt: evt})
		}
	}
	e.pending = nil
}

// DiscardEvents drops queued events without emitting them. Callers invoke it
// when the surrounding operation or its commit fails.
func (e *Engine) DiscardEvents() {
	if e == nil {
		return
	}
	e.pending = nil
}

func (e *Engine) params() (*Params, error) {
	params, err := e.state.MarketParamsGet()
	if err != nil {
		return nil, err
	}
	return SanitizeParams(params)
}

// Sell deposits the listed assets into marketplace custody and records one
// listing per asset. The caller must be authorized to move each asset (owner
// or approved operator, enforced by the registry); a single rejected transfer
// aborts the whole batch.
func (e *Engine) Sell(caller [20]byte, collection string, assetIDs []uint64, prices []*big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if len(assetIDs) != len(prices) {
		return ErrLengthMismatch
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	now := e.now()
	snap := e.state.Snapshot()
	buffered := make([]*types.Event, 0, len(assetIDs))
	for i, assetID := range assetIDs {
		price := prices[i]
		if price == nil || price.Sign() < 0 {
			e.state.RevertToSnapshot(snap)
			return fmt.Errorf("%w: price must be non-negative", ErrInvalidListing)
		}
		if err := e.registry.AssetTransfer(normalized, e.module, assetID, caller, e.module); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		listing := &Listing{
			Collection: normalized,
			AssetID:    assetID,
			Seller:     caller,
			Price:      new(big.Int).Set(price),
			CreatedAt:  now,
		}
		if err := e.state.ListingPut(listing); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		buffered = append(buffered, NewListedEvent(listing))
	}
	e.queue(buffered...)
	return nil
}

// Cancel returns the listed assets to their seller and removes the listings.
// Absence of a listing and a listing owned by someone else surface the same
// failure.
func (e *Engine) Cancel(caller [20]byte, collection string, assetIDs []uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	snap := e.state.Snapshot()
	buffered := make([]*types.Event, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		listing, ok, err := e.state.ListingGet(normalized, assetID)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if !ok || listing.Seller != caller {
			e.state.RevertToSnapshot(snap)
			return ErrUnauthorized
		}
		if err := e.registry.AssetTransfer(normalized, e.module, assetID, e.module, listing.Seller); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if err := e.state.ListingDelete(normalized, assetID); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		buffered = append(buffered, NewCancelledEvent(listing))
	}
	e.queue(buffered...)
	return nil
}

// Buy settles the purchase of every listed asset in the batch: the buyer pays
// each listed price in the accepted token, sellers receive price minus fee,
// the fee owner receives the accumulated fee, and custody moves to the buyer.
// Per item the order is verify listing, compute amounts, pull payment, push
// payout, transfer asset, delete listing; any failure reverts the entire
// call.
func (e *Engine) Buy(caller [20]byte, collection string, assetIDs []uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	params, err := e.params()
	if err != nil {
		return err
	}
	snap := e.state.Snapshot()
	feeTotal := big.NewInt(0)
	buffered := make([]*types.Event, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		listing, ok, err := e.state.ListingGet(normalized, assetID)
		if err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if !ok {
			e.state.RevertToSnapshot(snap)
			return ErrCollectionUnavailable
		}
		price := listing.Price
		feeAmount := new(big.Int).Mul(price, new(big.Int).SetUint64(uint64(params.Fee)))
		feeAmount.Div(feeAmount, big.NewInt(FeeDenominator))
		sellerAmount := new(big.Int).Sub(price, feeAmount)
		if err := e.ledger.TokenTransferFrom(params.AcceptedToken, e.module, caller, e.module, price); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if err := e.ledger.TokenTransfer(params.AcceptedToken, e.module, listing.Seller, sellerAmount); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		feeTotal.Add(feeTotal, feeAmount)
		if err := e.registry.AssetTransfer(normalized, e.module, assetID, e.module, caller); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		if err := e.state.ListingDelete(normalized, assetID); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		buffered = append(buffered, NewSoldEvent(listing, caller))
	}
	if feeTotal.Sign() > 0 {
		if err := e.ledger.TokenTransfer(params.AcceptedToken, e.module, params.FeeOwner, feeTotal); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
	}
	e.queue(buffered...)
	return nil
}

// GetPrice returns the listed price for the asset, or zero when no listing
// exists.
func (e *Engine) GetPrice(collection string, assetID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return nil, err
	}
	listing, ok, err := e.state.ListingGet(normalized, assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(listing.Price), nil
}

// IsActive reports whether a listing exists for the asset.
func (e *Engine) IsActive(collection string, assetID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return false, err
	}
	_, ok, err := e.state.ListingGet(normalized, assetID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// GetListing returns a copy of the stored listing, if any.
func (e *Engine) GetListing(collection string, assetID uint64) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return nil, false, err
	}
	listing, ok, err := e.state.ListingGet(normalized, assetID)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing.Clone(), true, nil
}

// Params returns a copy of the current marketplace configuration.
func (e *Engine) Params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	params, err := e.state.MarketParamsGet()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

func (e *Engine) requireOwner(caller [20]byte) (*Params, error) {
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	if params.Owner != caller {
		return nil, ErrUnauthorized
	}
	return params, nil
}

// SetFee updates the fee rate. The rate is deliberately not clamped to the
// denominator; settlement rejects purchases whose payout would go negative.
func (e *Engine) SetFee(caller [20]byte, fee uint32) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	params.Fee = fee
	if err := e.state.MarketParamsPut(params); err != nil {
		return err
	}
	e.queue(NewFeeUpdatedEvent(fee))
	return nil
}

// SetFeeOwner updates the identity credited with sale fees.
func (e *Engine) SetFeeOwner(caller, feeOwner [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	params.FeeOwner = feeOwner
	if err := e.state.MarketParamsPut(params); err != nil {
		return err
	}
	e.queue(NewFeeOwnerUpdatedEvent(feeOwner))
	return nil
}

// TransferOwnership hands the configuration owner role to a new identity.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	previous := params.Owner
	params.Owner = newOwner
	if err := e.state.MarketParamsPut(params); err != nil {
		return err
	}
	e.queue(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// SetPaused blocks or unblocks every mutating marketplace operation. Only the
// owner may toggle it, and the toggle itself bypasses the guard so a paused
// module can always be resumed.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.state.PausePut(ModuleName, paused); err != nil {
		return err
	}
	e.queue(NewPauseChangedEvent(paused))
	return nil
}

// WithdrawToken moves amount of any ledger token held by the marketplace
// account to the owner. Used to recover stray balances not tied to a listing.
func (e *Engine) WithdrawToken(caller [20]byte, token string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("marketplace: withdraw amount must be non-negative")
	}
	if err := e.ledger.TokenTransfer(token, e.module, params.Owner, amount); err != nil {
		return err
	}
	e.queue(NewTokenWithdrawnEvent(token, amount.String(), params.Owner))
	return nil
}

// WithdrawAsset moves an asset held by the marketplace account to the owner.
// The listing table is not consulted: withdrawing a listed asset strands its
// listing until the seller cancels.
func (e *Engine) WithdrawAsset(caller [20]byte, collection string, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	params, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	normalized, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	if err := e.registry.AssetTransfer(normalized, e.module, assetID, e.module, params.Owner); err != nil {
		return err
	}
	e.queue(NewAssetWithdrawnEvent(normalized, assetID, params.Owner))
	return nil
}
