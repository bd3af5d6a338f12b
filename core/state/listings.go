package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"dgmarket/native/marketplace"
)

var (
	listingPrefix   = []byte("market/listing")
	marketParamsKey = kvKey([]byte("market/params"))
)

func listingKey(collection string, assetID uint64) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], assetID)
	return kvKey(listingPrefix, []byte(collection), id[:])
}

type storedListing struct {
	Collection string
	AssetID    uint64
	Seller     [20]byte
	Price      *big.Int
	CreatedAt  uint64
}

type storedParams struct {
	AcceptedToken string
	FeeOwner      [20]byte
	Fee           uint32
	Owner         [20]byte
}

// ListingPut stores a sanitized listing, overwriting any prior entry for the
// same collection and asset.
func (m *Manager) ListingPut(l *marketplace.Listing) error {
	sanitized, err := marketplace.SanitizeListing(l)
	if err != nil {
		return err
	}
	stored := storedListing{
		Collection: sanitized.Collection,
		AssetID:    sanitized.AssetID,
		Seller:     sanitized.Seller,
		Price:      sanitized.Price,
		CreatedAt:  uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	m.set(listingKey(sanitized.Collection, sanitized.AssetID), encoded)
	return nil
}

// ListingGet loads the listing for (collection, assetID). The second return
// value reports presence; an absent entry is not an error.
func (m *Manager) ListingGet(collection string, assetID uint64) (*marketplace.Listing, bool, error) {
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return nil, false, err
	}
	data, err := m.get(listingKey(normalized, assetID))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	stored := new(storedListing)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode listing: %w", err)
	}
	listing := &marketplace.Listing{
		Collection: stored.Collection,
		AssetID:    stored.AssetID,
		Seller:     stored.Seller,
		Price:      stored.Price,
		CreatedAt:  int64(stored.CreatedAt),
	}
	if listing.Price == nil {
		listing.Price = big.NewInt(0)
	}
	return listing, true, nil
}

// ListingDelete removes the listing entry, returning the key to its absent
// state.
func (m *Manager) ListingDelete(collection string, assetID uint64) error {
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return err
	}
	m.delete(listingKey(normalized, assetID))
	return nil
}

// MarketParamsPut persists the marketplace configuration record.
func (m *Manager) MarketParamsPut(p *marketplace.Params) error {
	sanitized, err := marketplace.SanitizeParams(p)
	if err != nil {
		return err
	}
	stored := storedParams{
		AcceptedToken: sanitized.AcceptedToken,
		FeeOwner:      sanitized.FeeOwner,
		Fee:           sanitized.Fee,
		Owner:         sanitized.Owner,
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	m.set(marketParamsKey, encoded)
	return nil
}

// MarketParamsGet loads the marketplace configuration record.
func (m *Manager) MarketParamsGet() (*marketplace.Params, error) {
	data, err := m.get(marketParamsKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, marketplace.ErrParamsNotFound
	}
	stored := new(storedParams)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode params: %w", err)
	}
	return &marketplace.Params{
		AcceptedToken: stored.AcceptedToken,
		FeeOwner:      stored.FeeOwner,
		Fee:           stored.Fee,
		Owner:         stored.Owner,
	}, nil
}
