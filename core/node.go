package core

import (
	"math/big"
	"sync"

	"dgmarket/core/events"
	"dgmarket/core/state"
	"dgmarket/native/marketplace"
)

// Node is the single serialization point for every marketplace operation.
// Each call runs to completion under one lock, including all ledger and
// registry sub-steps; successful operations are committed to the backing
// database before the lock is released, failed ones leave no trace.
type Node struct {
	mu     sync.Mutex
	state  *state.Manager
	engine *marketplace.Engine
}

// NewNode wires a marketplace engine to the given state manager.
func NewNode(manager *state.Manager) *Node {
	engine := marketplace.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(manager)
	engine.SetRegistry(manager)
	engine.SetPauses(manager)
	return &Node{state: manager, engine: engine}
}

// SetEmitter forwards the emitter to the engine.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.engine.SetEmitter(emitter)
}

// Engine exposes the underlying engine, primarily for tests.
func (n *Node) Engine() *marketplace.Engine { return n.engine }

// run executes one operation under the node lock. State reaches the database
// and events reach the emitter only when both the operation and the commit
// succeed; any failure reverts staged writes and drops queued events.
func (n *Node) run(op func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := n.state.Snapshot()
	if err := op(); err != nil {
		n.state.RevertToSnapshot(snap)
		n.engine.DiscardEvents()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.RevertToSnapshot(snap)
		n.engine.DiscardEvents()
		return err
	}
	n.engine.FlushEvents()
	return nil
}

// InitParams persists the marketplace configuration if none exists yet.
func (n *Node) InitParams(params *marketplace.Params) error {
	return n.run(func() error {
		if _, err := n.state.MarketParamsGet(); err == nil {
			return nil
		}
		return n.state.MarketParamsPut(params)
	})
}

// --- Marketplace operations ---

func (n *Node) MarketSell(caller [20]byte, collection string, assetIDs []uint64, prices []*big.Int) error {
	return n.run(func() error { return n.engine.Sell(caller, collection, assetIDs, prices) })
}

func (n *Node) MarketCancel(caller [20]byte, collection string, assetIDs []uint64) error {
	return n.run(func() error { return n.engine.Cancel(caller, collection, assetIDs) })
}

func (n *Node) MarketBuy(caller [20]byte, collection string, assetIDs []uint64) error {
	return n.run(func() error { return n.engine.Buy(caller, collection, assetIDs) })
}

func (n *Node) MarketGetPrice(collection string, assetID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetPrice(collection, assetID)
}

func (n *Node) MarketIsActive(collection string, assetID uint64) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.IsActive(collection, assetID)
}

func (n *Node) MarketGetListing(collection string, assetID uint64) (*marketplace.Listing, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetListing(collection, assetID)
}

func (n *Node) MarketParams() (*marketplace.Params, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Params()
}

func (n *Node) MarketSetFee(caller [20]byte, fee uint32) error {
	return n.run(func() error { return n.engine.SetFee(caller, fee) })
}

func (n *Node) MarketSetFeeOwner(caller, feeOwner [20]byte) error {
	return n.run(func() error { return n.engine.SetFeeOwner(caller, feeOwner) })
}

func (n *Node) MarketTransferOwnership(caller, newOwner [20]byte) error {
	return n.run(func() error { return n.engine.TransferOwnership(caller, newOwner) })
}

func (n *Node) MarketSetPaused(caller [20]byte, paused bool) error {
	return n.run(func() error { return n.engine.SetPaused(caller, paused) })
}

func (n *Node) MarketWithdrawToken(caller [20]byte, token string, amount *big.Int) error {
	return n.run(func() error { return n.engine.WithdrawToken(caller, token, amount) })
}

func (n *Node) MarketWithdrawAsset(caller [20]byte, collection string, assetID uint64) error {
	return n.run(func() error { return n.engine.WithdrawAsset(caller, collection, assetID) })
}

// --- Ledger and registry passthroughs ---

func (n *Node) RegisterToken(meta *state.TokenMetadata) error {
	return n.run(func() error { return n.state.RegisterToken(meta) })
}

func (n *Node) RegisterCollection(meta *state.CollectionMetadata) error {
	return n.run(func() error { return n.state.RegisterCollection(meta) })
}

func (n *Node) TokenMint(symbol string, caller, to [20]byte, amount *big.Int) error {
	return n.run(func() error { return n.state.TokenMint(symbol, caller, to, amount) })
}

func (n *Node) TokenApprove(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return n.run(func() error { return n.state.TokenApprove(symbol, owner, spender, amount) })
}

func (n *Node) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.TokenBalance(symbol, addr)
}

func (n *Node) AssetMint(collection string, caller, to [20]byte, assetID uint64) error {
	return n.run(func() error { return n.state.AssetMint(collection, caller, to, assetID) })
}

func (n *Node) AssetSetApprovalForAll(collection string, owner, operator [20]byte, approved bool) error {
	return n.run(func() error { return n.state.AssetSetApprovalForAll(collection, owner, operator, approved) })
}

func (n *Node) AssetOwner(collection string, assetID uint64) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.AssetOwner(collection, assetID)
}
