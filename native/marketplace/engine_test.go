package marketplace_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"dgmarket/core/events"
	"dgmarket/core/state"
	"dgmarket/core/types"
	nativecommon "dgmarket/native/common"
	"dgmarket/native/marketplace"
	"dgmarket/storage"
)

const (
	testToken      = "ICE"
	testCollection = "WEARABLES"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type eventRecorder struct {
	events []*types.Event
}

func (r *eventRecorder) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	r.events = append(r.events, carrier.Event())
}

func (r *eventRecorder) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

type testEnv struct {
	t        *testing.T
	manager  *state.Manager
	engine   *marketplace.Engine
	recorder *eventRecorder
	owner    [20]byte
	feeOwner [20]byte
	seller   [20]byte
	buyer    [20]byte
	module   [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	env := &testEnv{
		t:        t,
		manager:  manager,
		owner:    newTestAddress(0x01),
		feeOwner: newTestAddress(0x02),
		seller:   newTestAddress(0x03),
		buyer:    newTestAddress(0x04),
		module:   marketplace.ModuleAddress(),
	}
	if err := manager.RegisterToken(&state.TokenMetadata{
		Symbol:        testToken,
		Name:          "ICE Token",
		Decimals:      18,
		MintAuthority: env.owner,
	}); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := manager.RegisterCollection(&state.CollectionMetadata{
		Symbol:        testCollection,
		Name:          "Wearables",
		MintAuthority: env.owner,
	}); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	if err := manager.MarketParamsPut(&marketplace.Params{
		AcceptedToken: testToken,
		FeeOwner:      env.feeOwner,
		Fee:           50_000,
		Owner:         env.owner,
	}); err != nil {
		t.Fatalf("store params: %v", err)
	}

	recorder := &eventRecorder{}
	engine := marketplace.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(manager)
	engine.SetRegistry(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	env.engine = engine
	env.recorder = recorder
	return env
}

func (env *testEnv) mintAsset(assetID uint64) {
	env.t.Helper()
	if err := env.manager.AssetMint(testCollection, env.owner, env.seller, assetID); err != nil {
		env.t.Fatalf("mint asset %d: %v", assetID, err)
	}
}

func (env *testEnv) approveOperator() {
	env.t.Helper()
	if err := env.manager.AssetSetApprovalForAll(testCollection, env.seller, env.module, true); err != nil {
		env.t.Fatalf("set approval for all: %v", err)
	}
}

func (env *testEnv) fundBuyer(amount int64) {
	env.t.Helper()
	if err := env.manager.TokenMint(testToken, env.owner, env.buyer, big.NewInt(amount)); err != nil {
		env.t.Fatalf("mint tokens: %v", err)
	}
	if err := env.manager.TokenApprove(testToken, env.buyer, env.module, big.NewInt(amount)); err != nil {
		env.t.Fatalf("approve module: %v", err)
	}
}

func (env *testEnv) balance(addr [20]byte) *big.Int {
	env.t.Helper()
	balance, err := env.manager.TokenBalance(testToken, addr)
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return balance
}

func (env *testEnv) assetOwner(assetID uint64) [20]byte {
	env.t.Helper()
	owner, err := env.manager.AssetOwner(testCollection, assetID)
	if err != nil {
		env.t.Fatalf("asset owner: %v", err)
	}
	return owner
}

// flush drains queued engine events into the recorder, mirroring what the
// node does after a successful commit.
func (env *testEnv) flush() {
	env.t.Helper()
	env.engine.FlushEvents()
}

func (env *testEnv) list(assetID uint64, price int64) {
	env.t.Helper()
	env.mintAsset(assetID)
	env.approveOperator()
	if err := env.engine.Sell(env.seller, testCollection, []uint64{assetID}, []*big.Int{big.NewInt(price)}); err != nil {
		env.t.Fatalf("sell asset %d: %v", assetID, err)
	}
	env.flush()
	env.recorder.events = nil
}

func TestSellEscrowsAssetsAndRecordsListings(t *testing.T) {
	env := newTestEnv(t)
	env.mintAsset(1)
	env.mintAsset(2)
	env.approveOperator()

	prices := []*big.Int{big.NewInt(10_000), big.NewInt(20_000)}
	if err := env.engine.Sell(env.seller, testCollection, []uint64{1, 2}, prices); err != nil {
		t.Fatalf("sell: %v", err)
	}

	for i, assetID := range []uint64{1, 2} {
		if owner := env.assetOwner(assetID); owner != env.module {
			t.Fatalf("asset %d: owner = %x, want module account", assetID, owner)
		}
		listing, ok, err := env.engine.GetListing(testCollection, assetID)
		if err != nil || !ok {
			t.Fatalf("asset %d: listing missing (err=%v)", assetID, err)
		}
		if listing.Seller != env.seller {
			t.Fatalf("asset %d: seller = %x", assetID, listing.Seller)
		}
		if listing.Price.Cmp(prices[i]) != 0 {
			t.Fatalf("asset %d: price = %s, want %s", assetID, listing.Price, prices[i])
		}
		if listing.CreatedAt != 1_700_000_000 {
			t.Fatalf("asset %d: createdAt = %d", assetID, listing.CreatedAt)
		}
	}

	env.flush()
	if got := env.recorder.types(); len(got) != 2 || got[0] != marketplace.EventTypeListed || got[1] != marketplace.EventTypeListed {
		t.Fatalf("events = %v", got)
	}
}

func TestSellLengthMismatchIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.mintAsset(1)
	env.approveOperator()

	err := env.engine.Sell(env.seller, testCollection, []uint64{1, 2}, []*big.Int{big.NewInt(10)})
	if !errors.Is(err, marketplace.ErrLengthMismatch) {
		t.Fatalf("err = %v, want ErrLengthMismatch", err)
	}
	if owner := env.assetOwner(1); owner != env.seller {
		t.Fatalf("asset moved on failed sell: owner = %x", owner)
	}
	env.flush()
	if len(env.recorder.events) != 0 {
		t.Fatalf("failed sell emitted events: %v", env.recorder.types())
	}
}

func TestSellWithoutOperatorApprovalRevertsBatch(t *testing.T) {
	env := newTestEnv(t)
	env.mintAsset(1)
	env.mintAsset(2)
	env.approveOperator()
	// Asset 3 belongs to the buyer, who never approved the marketplace.
	if err := env.manager.AssetMint(testCollection, env.owner, env.buyer, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := env.engine.Sell(env.seller, testCollection, []uint64{1, 3},
		[]*big.Int{big.NewInt(10), big.NewInt(20)})
	if err == nil {
		t.Fatal("sell of foreign asset succeeded")
	}
	if owner := env.assetOwner(1); owner != env.seller {
		t.Fatalf("asset 1 escrowed despite batch failure: owner = %x", owner)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); active {
		t.Fatal("listing survived batch failure")
	}
	env.flush()
	if len(env.recorder.events) != 0 {
		t.Fatalf("failed sell emitted events: %v", env.recorder.types())
	}
}

func TestSellRejectsNegativePrice(t *testing.T) {
	env := newTestEnv(t)
	env.mintAsset(1)
	env.approveOperator()

	err := env.engine.Sell(env.seller, testCollection, []uint64{1}, []*big.Int{big.NewInt(-1)})
	if !errors.Is(err, marketplace.ErrInvalidListing) {
		t.Fatalf("err = %v, want ErrInvalidListing", err)
	}
}

func TestCancelReturnsAssetToSeller(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)

	if err := env.engine.Cancel(env.seller, testCollection, []uint64{1}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if owner := env.assetOwner(1); owner != env.seller {
		t.Fatalf("owner after cancel = %x", owner)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); active {
		t.Fatal("listing still active after cancel")
	}
	env.flush()
	if got := env.recorder.types(); len(got) != 1 || got[0] != marketplace.EventTypeCancelled {
		t.Fatalf("events = %v", got)
	}
}

func TestCancelRejectsNonSellerAndMissingListing(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)

	if err := env.engine.Cancel(env.buyer, testCollection, []uint64{1}); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("foreign cancel err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.Cancel(env.seller, testCollection, []uint64{99}); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("missing cancel err = %v, want ErrUnauthorized", err)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); !active {
		t.Fatal("listing lost on rejected cancel")
	}
	env.flush()
	if len(env.recorder.events) != 0 {
		t.Fatalf("rejected cancel emitted events: %v", env.recorder.types())
	}
}

func TestCancelBatchRevertsOnSingleFailure(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.list(2, 20_000)

	err := env.engine.Cancel(env.seller, testCollection, []uint64{1, 99})
	if !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if owner := env.assetOwner(1); owner != env.module {
		t.Fatalf("asset 1 left escrow on failed batch: owner = %x", owner)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); !active {
		t.Fatal("listing 1 removed on failed batch")
	}
}

func TestBuySettlesBatchWithFeeSplit(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.list(2, 20_000)
	env.fundBuyer(30_000)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1, 2}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// 5% fee on 30_000 total: sellers keep 28_500, fee owner collects 1_500.
	if got := env.balance(env.buyer); got.Sign() != 0 {
		t.Fatalf("buyer balance = %s, want 0", got)
	}
	if got := env.balance(env.seller); got.Cmp(big.NewInt(28_500)) != 0 {
		t.Fatalf("seller balance = %s, want 28500", got)
	}
	if got := env.balance(env.feeOwner); got.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("fee owner balance = %s, want 1500", got)
	}
	if got := env.balance(env.module); got.Sign() != 0 {
		t.Fatalf("module retained %s after settlement", got)
	}
	for _, assetID := range []uint64{1, 2} {
		if owner := env.assetOwner(assetID); owner != env.buyer {
			t.Fatalf("asset %d: owner = %x, want buyer", assetID, owner)
		}
		if active, _ := env.engine.IsActive(testCollection, assetID); active {
			t.Fatalf("asset %d still listed after purchase", assetID)
		}
	}
	env.flush()
	if got := env.recorder.types(); len(got) != 2 || got[0] != marketplace.EventTypeSold {
		t.Fatalf("events = %v", got)
	}
}

func TestBuyMissingListingFails(t *testing.T) {
	env := newTestEnv(t)
	env.fundBuyer(10_000)

	err := env.engine.Buy(env.buyer, testCollection, []uint64{42})
	if !errors.Is(err, marketplace.ErrCollectionUnavailable) {
		t.Fatalf("err = %v, want ErrCollectionUnavailable", err)
	}
}

func TestBuyTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.fundBuyer(20_000)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	err := env.engine.Buy(env.buyer, testCollection, []uint64{1})
	if !errors.Is(err, marketplace.ErrCollectionUnavailable) {
		t.Fatalf("second buy err = %v, want ErrCollectionUnavailable", err)
	}
}

func TestBuyRevertsWhollyOnMidBatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.list(2, 20_000)
	// Enough for the first item only.
	env.fundBuyer(10_000)

	err := env.engine.Buy(env.buyer, testCollection, []uint64{1, 2})
	if !errors.Is(err, state.ErrInsufficientAllowance) && !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	if got := env.balance(env.buyer); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("buyer debited on failed batch: balance = %s", got)
	}
	if got := env.balance(env.seller); got.Sign() != 0 {
		t.Fatalf("seller credited on failed batch: balance = %s", got)
	}
	if owner := env.assetOwner(1); owner != env.module {
		t.Fatalf("asset 1 left escrow on failed batch: owner = %x", owner)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); !active {
		t.Fatal("listing 1 removed on failed batch")
	}
	env.flush()
	if len(env.recorder.events) != 0 {
		t.Fatalf("failed buy emitted events: %v", env.recorder.types())
	}
}

func TestBuyAtFullFeeRoutesWholePriceToFeeOwner(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetFee(env.owner, marketplace.FeeDenominator); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.list(1, 10_000)
	env.fundBuyer(10_000)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := env.balance(env.seller); got.Sign() != 0 {
		t.Fatalf("seller balance = %s, want 0", got)
	}
	if got := env.balance(env.feeOwner); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("fee owner balance = %s, want 10000", got)
	}
}

func TestBuyAboveFullFeeFails(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetFee(env.owner, 2*marketplace.FeeDenominator); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.list(1, 10_000)
	env.fundBuyer(10_000)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err == nil {
		t.Fatal("buy with negative seller payout succeeded")
	}
	if got := env.balance(env.buyer); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("buyer debited: balance = %s", got)
	}
	if active, _ := env.engine.IsActive(testCollection, 1); !active {
		t.Fatal("listing removed on failed settlement")
	}
}

func TestBuyFreeListingSkipsFeePayout(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 0)
	env.fundBuyer(1)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if owner := env.assetOwner(1); owner != env.buyer {
		t.Fatalf("owner = %x, want buyer", owner)
	}
	if got := env.balance(env.feeOwner); got.Sign() != 0 {
		t.Fatalf("fee owner credited %s on free sale", got)
	}
}

func TestGetPriceAndIsActiveDefaults(t *testing.T) {
	env := newTestEnv(t)

	price, err := env.engine.GetPrice(testCollection, 7)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Sign() != 0 {
		t.Fatalf("price = %s, want 0", price)
	}
	active, err := env.engine.IsActive(testCollection, 7)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Fatal("unknown asset reported active")
	}
	if _, ok, err := env.engine.GetListing(testCollection, 7); err != nil || ok {
		t.Fatalf("listing = (%v, %v), want absent", ok, err)
	}
}

func TestAdminOperationsRequireOwner(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetFee(env.buyer, 10); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("setFee err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.SetFeeOwner(env.buyer, env.buyer); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("setFeeOwner err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.TransferOwnership(env.buyer, env.buyer); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("transferOwnership err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.WithdrawToken(env.buyer, testToken, big.NewInt(1)); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("withdrawToken err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.WithdrawAsset(env.buyer, testCollection, 1); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("withdrawAsset err = %v, want ErrUnauthorized", err)
	}
}

func TestPauseBlocksMutatingOperations(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.fundBuyer(10_000)

	if err := env.engine.SetPaused(env.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	env.flush()
	if got := env.recorder.types(); len(got) != 1 || got[0] != marketplace.EventTypePauseChanged {
		t.Fatalf("events = %v", got)
	}
	env.recorder.events = nil

	env.mintAsset(2)
	if err := env.engine.Sell(env.seller, testCollection, []uint64{2}, []*big.Int{big.NewInt(5)}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("sell err = %v, want ErrModulePaused", err)
	}
	if err := env.engine.Cancel(env.seller, testCollection, []uint64{1}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("cancel err = %v, want ErrModulePaused", err)
	}
	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("buy err = %v, want ErrModulePaused", err)
	}
	if err := env.engine.SetFee(env.owner, 10); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("setFee err = %v, want ErrModulePaused", err)
	}
	env.flush()
	if len(env.recorder.events) != 0 {
		t.Fatalf("blocked operations emitted events: %v", env.recorder.types())
	}

	// Queries stay available while paused.
	if active, err := env.engine.IsActive(testCollection, 1); err != nil || !active {
		t.Fatalf("isActive while paused = %v, %v", active, err)
	}

	if err := env.engine.SetPaused(env.owner, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("buy after resume: %v", err)
	}
	if owner := env.assetOwner(1); owner != env.buyer {
		t.Fatalf("asset owner after resume = %x, want buyer", owner)
	}
}

func TestSetPausedRequiresOwner(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetPaused(env.buyer, true); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("setPaused err = %v, want ErrUnauthorized", err)
	}
	if env.manager.IsPaused(marketplace.ModuleName) {
		t.Fatal("rejected pause left module paused")
	}
}

func TestSetFeeUpdatesParams(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.SetFee(env.owner, 75_000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	params, err := env.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Fee != 75_000 {
		t.Fatalf("fee = %d, want 75000", params.Fee)
	}
	env.flush()
	if got := env.recorder.types(); len(got) != 1 || got[0] != marketplace.EventTypeFeeUpdated {
		t.Fatalf("events = %v", got)
	}
}

func TestTransferOwnershipHandsOverAdminRights(t *testing.T) {
	env := newTestEnv(t)
	next := newTestAddress(0x05)

	if err := env.engine.TransferOwnership(env.owner, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := env.engine.SetFee(env.owner, 10); !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("old owner still authorized: %v", err)
	}
	if err := env.engine.SetFee(next, 10); err != nil {
		t.Fatalf("new owner rejected: %v", err)
	}
}

func TestSetFeeOwnerRedirectsFees(t *testing.T) {
	env := newTestEnv(t)
	next := newTestAddress(0x06)

	if err := env.engine.SetFeeOwner(env.owner, next); err != nil {
		t.Fatalf("set fee owner: %v", err)
	}
	env.list(1, 10_000)
	env.fundBuyer(10_000)
	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := env.balance(next); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("new fee owner balance = %s, want 500", got)
	}
	if got := env.balance(env.feeOwner); got.Sign() != 0 {
		t.Fatalf("old fee owner credited %s", got)
	}
}

func TestWithdrawTokenRecoversStrayBalance(t *testing.T) {
	env := newTestEnv(t)
	// Strand a balance on the module account.
	if err := env.manager.TokenMint(testToken, env.owner, env.module, big.NewInt(777)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := env.engine.WithdrawToken(env.owner, testToken, big.NewInt(777)); err != nil {
		t.Fatalf("withdraw token: %v", err)
	}
	if got := env.balance(env.owner); got.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("owner balance = %s, want 777", got)
	}
	env.flush()
	if got := env.recorder.types(); len(got) != 1 || got[0] != marketplace.EventTypeTokenWithdrawn {
		t.Fatalf("events = %v", got)
	}
}

func TestWithdrawTokenExceedingBalanceFails(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.WithdrawToken(env.owner, testToken, big.NewInt(1))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestWithdrawAssetIgnoresListingTable(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)

	if err := env.engine.WithdrawAsset(env.owner, testCollection, 1); err != nil {
		t.Fatalf("withdraw asset: %v", err)
	}
	if owner := env.assetOwner(1); owner != env.owner {
		t.Fatalf("owner = %x, want admin owner", owner)
	}
	// The listing stays behind; only the registry changed hands.
	if active, _ := env.engine.IsActive(testCollection, 1); !active {
		t.Fatal("withdrawal removed the listing")
	}
	// A later purchase of the stranded listing fails at the asset transfer.
	env.fundBuyer(10_000)
	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err == nil {
		t.Fatal("purchase of withdrawn asset succeeded")
	}
}

func TestCollectionSymbolIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)

	price, err := env.engine.GetPrice("  wearables ", 1)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("price = %s, want 10000", price)
	}
	env.fundBuyer(10_000)
	if err := env.engine.Buy(env.buyer, "wearables", []uint64{1}); err != nil {
		t.Fatalf("buy with lowercase symbol: %v", err)
	}
}

func TestSoldEventCarriesBuyerAndPrice(t *testing.T) {
	env := newTestEnv(t)
	env.list(1, 10_000)
	env.fundBuyer(10_000)

	if err := env.engine.Buy(env.buyer, testCollection, []uint64{1}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	env.flush()
	if len(env.recorder.events) != 1 {
		t.Fatalf("events = %v", env.recorder.types())
	}
	attrs := env.recorder.events[0].Attributes
	if attrs["collection"] != testCollection || attrs["assetId"] != "1" || attrs["price"] != "10000" {
		t.Fatalf("attributes = %v", attrs)
	}
	if attrs["buyer"] == "" || attrs["seller"] == "" {
		t.Fatalf("missing parties: %v", attrs)
	}
}
