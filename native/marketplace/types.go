package marketplace

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// FeeDenominator is the full-unit denominator for the marketplace fee rate.
// A fee of 50_000 routes 5% of every sale price to the fee owner.
const FeeDenominator = 1_000_000

// ModuleName identifies the marketplace for pause guards and event namespaces.
const ModuleName = "marketplace"

// Listing is an active offer to sell one asset at a fixed price. The seller
// field is always non-zero for a stored listing; absence of a stored entry is
// the only representation of "inactive".
type Listing struct {
	Collection string
	AssetID    uint64
	Seller     [20]byte
	Price      *big.Int
	CreatedAt  int64
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises a listing definition, returning a
// cloned instance with a canonical collection symbol and a non-nil price. The
// function does not mutate the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listing", ErrInvalidListing)
	}
	clone := l.Clone()
	collection, err := NormalizeCollection(clone.Collection)
	if err != nil {
		return nil, err
	}
	clone.Collection = collection
	if clone.Seller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: seller required", ErrInvalidListing)
	}
	if clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidListing)
	}
	return clone, nil
}

// NormalizeCollection canonicalises a collection symbol to its uppercase
// trimmed form.
func NormalizeCollection(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: collection required", ErrInvalidListing)
	}
	return trimmed, nil
}

// Params holds the owner-mutable marketplace configuration. Fee carries no
// declared upper bound; a rate at or above FeeDenominator makes the seller
// payout non-positive and the purchase fails at settlement time.
type Params struct {
	AcceptedToken string
	FeeOwner      [20]byte
	Fee           uint32
	Owner         [20]byte
}

// Clone returns a copy of the parameter record.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// SanitizeParams validates the configuration record.
func SanitizeParams(p *Params) (*Params, error) {
	if p == nil {
		return nil, fmt.Errorf("marketplace: nil params")
	}
	clone := p.Clone()
	clone.AcceptedToken = strings.ToUpper(strings.TrimSpace(clone.AcceptedToken))
	if clone.AcceptedToken == "" {
		return nil, fmt.Errorf("marketplace: accepted token required")
	}
	if clone.Owner == ([20]byte{}) {
		return nil, fmt.Errorf("marketplace: owner required")
	}
	if clone.FeeOwner == ([20]byte{}) {
		return nil, fmt.Errorf("marketplace: fee owner required")
	}
	return clone, nil
}

// ModuleAddress returns the deterministic account holding escrowed assets and
// stray token balances on behalf of the marketplace.
func ModuleAddress() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("marketplace/module-account"))
	copy(addr[:], hash[len(hash)-20:])
	return addr
}
