package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrUnknownToken          = errors.New("state: token not registered")
	ErrInsufficientBalance   = errors.New("state: insufficient balance")
	ErrInsufficientAllowance = errors.New("state: insufficient allowance")
	ErrMintUnauthorized      = errors.New("state: mint authority required")
	ErrTokenExists           = errors.New("state: token already registered")
)

var (
	tokenPrefix     = []byte("token/meta")
	balancePrefix   = []byte("token/balance")
	allowancePrefix = []byte("token/allowance")
)

// TokenMetadata describes a registered fungible payment token.
type TokenMetadata struct {
	Symbol        string
	Name          string
	Decimals      uint8
	MintAuthority [20]byte
}

func tokenMetadataKey(symbol string) []byte {
	return kvKey(tokenPrefix, []byte(symbol))
}

func balanceKey(symbol string, addr [20]byte) []byte {
	return kvKey(balancePrefix, []byte(symbol), addr[:])
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	return kvKey(allowancePrefix, []byte(symbol), owner[:], spender[:])
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// RegisterToken stores the metadata for a payment token. Registering an
// already known symbol fails.
func (m *Manager) RegisterToken(meta *TokenMetadata) error {
	if meta == nil {
		return fmt.Errorf("state: nil token metadata")
	}
	symbol := normalizeSymbol(meta.Symbol)
	if symbol == "" {
		return fmt.Errorf("state: token symbol required")
	}
	existing, err := m.get(tokenMetadataKey(symbol))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrTokenExists, symbol)
	}
	stored := *meta
	stored.Symbol = symbol
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	m.set(tokenMetadataKey(symbol), encoded)
	return nil
}

// Token loads the metadata for a registered symbol.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	data, err := m.get(tokenMetadataKey(normalizeSymbol(symbol)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrUnknownToken
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, fmt.Errorf("state: decode token metadata: %w", err)
	}
	return meta, nil
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	data, err := m.get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, fmt.Errorf("state: decode amount: %w", err)
	}
	return amount, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		m.delete(key)
		return nil
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	m.set(key, encoded)
	return nil
}

// TokenBalance returns the balance held by addr for the given token.
func (m *Manager) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return nil, err
	}
	return m.loadAmount(balanceKey(normalized, addr))
}

// TokenAllowance returns the amount spender may move from owner's balance.
func (m *Manager) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return nil, err
	}
	return m.loadAmount(allowanceKey(normalized, owner, spender))
}

// TokenApprove sets the allowance spender may move from owner's balance.
func (m *Manager) TokenApprove(symbol string, owner, spender [20]byte, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	return m.storeAmount(allowanceKey(normalized, owner, spender), amount)
}

// TokenMint credits newly issued tokens to an account. Only the registered
// mint authority may mint.
func (m *Manager) TokenMint(symbol string, caller, to [20]byte, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	meta, err := m.Token(normalized)
	if err != nil {
		return err
	}
	if meta.MintAuthority != caller {
		return ErrMintUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	balance, err := m.loadAmount(balanceKey(normalized, to))
	if err != nil {
		return err
	}
	return m.storeAmount(balanceKey(normalized, to), new(big.Int).Add(balance, amount))
}

// TokenTransfer moves amount from one balance to another.
func (m *Manager) TokenTransfer(symbol string, from, to [20]byte, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	return m.moveBalance(normalized, from, to, amount)
}

// TokenTransferFrom moves amount from one balance to another on behalf of a
// spender, consuming the spender's allowance. A spender moving its own funds
// does not need an allowance.
func (m *Manager) TokenTransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if _, err := m.Token(normalized); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if spender != from {
		allowance, err := m.loadAmount(allowanceKey(normalized, from, spender))
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := m.storeAmount(allowanceKey(normalized, from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return m.moveBalance(normalized, from, to, amount)
}

func (m *Manager) moveBalance(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.loadAmount(balanceKey(symbol, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.loadAmount(balanceKey(symbol, to))
	if err != nil {
		return err
	}
	if err := m.storeAmount(balanceKey(symbol, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.storeAmount(balanceKey(symbol, to), new(big.Int).Add(toBalance, amount))
}
