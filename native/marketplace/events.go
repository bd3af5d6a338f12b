package marketplace

import (
	"encoding/hex"
	"strconv"

	"dgmarket/core/types"
)

const (
	EventTypeListed               = "marketplace.listed"
	EventTypeCancelled            = "marketplace.cancelled"
	EventTypeSold                 = "marketplace.sold"
	EventTypeFeeUpdated           = "marketplace.fee_updated"
	EventTypeFeeOwnerUpdated      = "marketplace.fee_owner_updated"
	EventTypeOwnershipTransferred = "marketplace.ownership_transferred"
	EventTypeTokenWithdrawn       = "marketplace.token_withdrawn"
	EventTypeAssetWithdrawn       = "marketplace.asset_withdrawn"
	EventTypePauseChanged         = "marketplace.pause_changed"
)

// NewListedEvent returns the canonical event payload emitted for each asset
// deposited by a sell call.
func NewListedEvent(l *Listing) *types.Event {
	attrs := listingAttributes(l)
	return &types.Event{Type: EventTypeListed, Attributes: attrs}
}

// NewCancelledEvent returns the canonical event payload emitted for each asset
// returned to its seller.
func NewCancelledEvent(l *Listing) *types.Event {
	attrs := listingAttributes(l)
	return &types.Event{Type: EventTypeCancelled, Attributes: attrs}
}

// NewSoldEvent returns the canonical event payload emitted for each settled
// purchase.
func NewSoldEvent(l *Listing, buyer [20]byte) *types.Event {
	attrs := listingAttributes(l)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	return &types.Event{Type: EventTypeSold, Attributes: attrs}
}

// NewFeeUpdatedEvent records a fee rate change.
func NewFeeUpdatedEvent(fee uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"fee": strconv.FormatUint(uint64(fee), 10),
	}}
}

// NewFeeOwnerUpdatedEvent records a fee recipient change.
func NewFeeOwnerUpdatedEvent(feeOwner [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeeOwnerUpdated, Attributes: map[string]string{
		"feeOwner": hex.EncodeToString(feeOwner[:]),
	}}
}

// NewOwnershipTransferredEvent records a configuration owner change.
func NewOwnershipTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": hex.EncodeToString(previous[:]),
		"newOwner":      hex.EncodeToString(next[:]),
	}}
}

// NewTokenWithdrawnEvent records an owner withdrawal of stray token balances.
func NewTokenWithdrawnEvent(token string, amount string, owner [20]byte) *types.Event {
	return &types.Event{Type: EventTypeTokenWithdrawn, Attributes: map[string]string{
		"token":  token,
		"amount": amount,
		"owner":  hex.EncodeToString(owner[:]),
	}}
}

// NewAssetWithdrawnEvent records an owner withdrawal of an asset held by the
// marketplace.
func NewAssetWithdrawnEvent(collection string, assetID uint64, owner [20]byte) *types.Event {
	return &types.Event{Type: EventTypeAssetWithdrawn, Attributes: map[string]string{
		"collection": collection,
		"assetId":    strconv.FormatUint(assetID, 10),
		"owner":      hex.EncodeToString(owner[:]),
	}}
}

// NewPauseChangedEvent records the module being paused or resumed.
func NewPauseChangedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePauseChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}

func listingAttributes(l *Listing) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	attrs["collection"] = l.Collection
	attrs["assetId"] = strconv.FormatUint(l.AssetID, 10)
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	if l.Price != nil {
		attrs["price"] = l.Price.String()
	} else {
		attrs["price"] = "0"
	}
	return attrs
}
