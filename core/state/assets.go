package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"dgmarket/native/marketplace"
)

var (
	ErrUnknownCollection = errors.New("state: collection not registered")
	ErrNonexistentAsset  = errors.New("state: nonexistent asset")
	ErrAssetUnauthorized = errors.New("state: asset transfer unauthorized")
	ErrAssetExists       = errors.New("state: asset already minted")
	ErrCollectionExists  = errors.New("state: collection already registered")
)

var (
	collectionPrefix = []byte("asset/collection")
	assetOwnerPrefix = []byte("asset/owner")
	assetApprPrefix  = []byte("asset/approved")
	operatorPrefix   = []byte("asset/operator")
)

// CollectionMetadata describes a registered non-fungible collection.
type CollectionMetadata struct {
	Symbol        string
	Name          string
	MintAuthority [20]byte
}

func collectionKey(symbol string) []byte {
	return kvKey(collectionPrefix, []byte(symbol))
}

func assetOwnerKey(collection string, assetID uint64) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], assetID)
	return kvKey(assetOwnerPrefix, []byte(collection), id[:])
}

func assetApprovalKey(collection string, assetID uint64) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], assetID)
	return kvKey(assetApprPrefix, []byte(collection), id[:])
}

func operatorKey(collection string, owner, operator [20]byte) []byte {
	return kvKey(operatorPrefix, []byte(collection), owner[:], operator[:])
}

// RegisterCollection stores the metadata for an asset collection.
func (m *Manager) RegisterCollection(meta *CollectionMetadata) error {
	if meta == nil {
		return fmt.Errorf("state: nil collection metadata")
	}
	symbol, err := marketplace.NormalizeCollection(meta.Symbol)
	if err != nil {
		return err
	}
	existing, err := m.get(collectionKey(symbol))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrCollectionExists, symbol)
	}
	stored := *meta
	stored.Symbol = symbol
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	m.set(collectionKey(symbol), encoded)
	return nil
}

// Collection loads the metadata for a registered collection symbol.
func (m *Manager) Collection(symbol string) (*CollectionMetadata, error) {
	normalized, err := marketplace.NormalizeCollection(symbol)
	if err != nil {
		return nil, err
	}
	data, err := m.get(collectionKey(normalized))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrUnknownCollection
	}
	meta := new(CollectionMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, fmt.Errorf("state: decode collection metadata: %w", err)
	}
	return meta, nil
}

// AssetMint records a newly issued asset for the given owner. Only the
// collection's mint authority may mint.
func (m *Manager) AssetMint(collection string, caller, to [20]byte, assetID uint64) error {
	meta, err := m.Collection(collection)
	if err != nil {
		return err
	}
	if meta.MintAuthority != caller {
		return ErrMintUnauthorized
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("state: mint recipient required")
	}
	key := assetOwnerKey(meta.Symbol, assetID)
	existing, err := m.get(key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrAssetExists
	}
	m.set(key, to[:])
	return nil
}

// AssetOwner returns the current custodian of the asset.
func (m *Manager) AssetOwner(collection string, assetID uint64) ([20]byte, error) {
	var owner [20]byte
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return owner, err
	}
	if _, err := m.Collection(normalized); err != nil {
		return owner, err
	}
	data, err := m.get(assetOwnerKey(normalized, assetID))
	if err != nil {
		return owner, err
	}
	if len(data) != 20 {
		return owner, ErrNonexistentAsset
	}
	copy(owner[:], data)
	return owner, nil
}

// AssetSetApprovalForAll grants or revokes operator rights over every asset
// the owner holds in the collection.
func (m *Manager) AssetSetApprovalForAll(collection string, owner, operator [20]byte, approved bool) error {
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return err
	}
	if _, err := m.Collection(normalized); err != nil {
		return err
	}
	key := operatorKey(normalized, owner, operator)
	if !approved {
		m.delete(key)
		return nil
	}
	m.set(key, []byte{1})
	return nil
}

// AssetIsApprovedForAll reports whether operator may move any of owner's
// assets in the collection.
func (m *Manager) AssetIsApprovedForAll(collection string, owner, operator [20]byte) (bool, error) {
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return false, err
	}
	data, err := m.get(operatorKey(normalized, owner, operator))
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}

// AssetApprove grants a single-asset approval to the given spender. Only the
// current owner may approve.
func (m *Manager) AssetApprove(collection string, caller, approved [20]byte, assetID uint64) error {
	owner, err := m.AssetOwner(collection, assetID)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrAssetUnauthorized
	}
	normalized, _ := marketplace.NormalizeCollection(collection)
	key := assetApprovalKey(normalized, assetID)
	if approved == ([20]byte{}) {
		m.delete(key)
		return nil
	}
	m.set(key, approved[:])
	return nil
}

func (m *Manager) assetApproved(collection string, assetID uint64) ([20]byte, error) {
	var approved [20]byte
	data, err := m.get(assetApprovalKey(collection, assetID))
	if err != nil {
		return approved, err
	}
	if len(data) == 20 {
		copy(approved[:], data)
	}
	return approved, nil
}

// AssetTransfer moves custody of the asset from its current owner to the
// recipient. The caller must be the owner, the approved address for the
// asset, or an approved operator; the per-asset approval is cleared on
// transfer.
func (m *Manager) AssetTransfer(collection string, caller [20]byte, assetID uint64, from, to [20]byte) error {
	normalized, err := marketplace.NormalizeCollection(collection)
	if err != nil {
		return err
	}
	owner, err := m.AssetOwner(normalized, assetID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrAssetUnauthorized
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("state: transfer recipient required")
	}
	if caller != owner {
		approved, err := m.assetApproved(normalized, assetID)
		if err != nil {
			return err
		}
		if approved != caller {
			isOperator, err := m.AssetIsApprovedForAll(normalized, owner, caller)
			if err != nil {
				return err
			}
			if !isOperator {
				return ErrAssetUnauthorized
			}
		}
	}
	m.delete(assetApprovalKey(normalized, assetID))
	m.set(assetOwnerKey(normalized, assetID), to[:])
	return nil
}
