package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/oracle"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// --- Test helpers ---

const (
	solPrice  int64 = 100_000_000 // $100
	usdcPrice int64 = 1_000_000
	oneSOL    int64 = 1_000_000_000
	oneUSDC   int64 = 1_000_000
)

var genesisTime = time.Unix(1_700_000_000, 0).UTC()

// harness drives a core with a one-second clock and unique keys.
type harness struct {
	t       *testing.T
	core    *core.DeterministicCore
	persist chan core.CoreOutput
	now     time.Time
	keys    int
	bridge  int64

	admin, treasury uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	persist := make(chan core.CoreOutput, 4096)
	c, err := core.NewDeterministicCore(core.DefaultConfig(), core.Outputs{Persist: persist}, nil, nil)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	return &harness{
		t:        t,
		core:     c,
		persist:  persist,
		now:      genesisTime,
		admin:    uuid.New(),
		treasury: uuid.New(),
	}
}

func (h *harness) header(caller uuid.UUID) event.Header {
	h.keys++
	h.now = h.now.Add(time.Second)
	return event.Header{Key: fmt.Sprintf("cmd-%d", h.keys), CallerID: caller, Timestamp: h.now}
}

// advance moves the clock and republishes both prices so they stay fresh.
func (h *harness) advance(d time.Duration, sol int64) {
	h.t.Helper()
	h.now = h.now.Add(d)
	h.mustSubmit(&event.UpdatePrice{Header: h.header(h.admin), Asset: "SOL", PriceUSD: sol})
	h.mustSubmit(&event.UpdatePrice{Header: h.header(h.admin), Asset: "USDC", PriceUSD: usdcPrice})
}

func (h *harness) submit(evt event.Event) (*core.Result, error) {
	return h.core.ProcessEvent(evt)
}

func (h *harness) mustSubmit(evt event.Event) *core.Result {
	h.t.Helper()
	res, err := h.core.ProcessEvent(evt)
	if err != nil {
		h.t.Fatalf("%s rejected: %v", evt.EventType(), err)
	}
	return res
}

// genesis initializes the protocol with SOL collateral, a USDC pool and
// fresh feeds for both.
func (h *harness) genesis() {
	h.t.Helper()
	h.mustSubmit(&event.InitializeProtocol{Header: h.header(h.admin), Treasury: h.treasury})
	h.mustSubmit(&event.RegisterCollateral{
		Header:                  h.header(h.admin),
		Asset:                   "SOL",
		Oracle:                  "pyth:SOL/USD",
		MaxLTVBps:               7_500,
		LiquidationThresholdBps: 8_500,
		LiquidationBonusBps:     500,
		Decimals:                9,
	})
	h.mustSubmit(&event.RegisterBorrowable{
		Header:   h.header(h.admin),
		Asset:    "USDC",
		Oracle:   "pyth:USDC/USD",
		Decimals: 6,
	})
	h.mustSubmit(&event.InitializePriceFeed{Header: h.header(h.admin), Asset: "SOL", PriceUSD: solPrice})
	h.mustSubmit(&event.InitializePriceFeed{Header: h.header(h.admin), Asset: "USDC", PriceUSD: usdcPrice})
}

func (h *harness) credit(owner uuid.UUID, asset string, amount int64) {
	h.t.Helper()
	h.mustSubmit(&event.WalletCredit{
		Header: h.header(h.admin), Owner: owner, Asset: asset, Amount: amount, Chain: "solana", Sequence: h.bridge,
	})
	h.bridge++
}

// funded runs genesis, seeds an LP with 500k USDC and gives the borrower
// 10 SOL of collateral.
func (h *harness) funded() (lp, borrower uuid.UUID) {
	h.t.Helper()
	h.genesis()
	lp, borrower = uuid.New(), uuid.New()
	h.credit(lp, "USDC", 1_000_000*oneUSDC)
	h.credit(borrower, "SOL", 10*oneSOL)
	h.mustSubmit(&event.LpDeposit{Header: h.header(lp), Asset: "USDC", Amount: 500_000 * oneUSDC})
	h.mustSubmit(&event.Deposit{Header: h.header(borrower), Asset: "SOL", Amount: 10 * oneSOL})
	return lp, borrower
}

func (h *harness) balance(key ledger.AccountKey) int64 {
	return h.core.Balance(key)
}

// --- Tests ---

func TestGenesisRequiresInitialization(t *testing.T) {
	h := newHarness(t)

	_, err := h.submit(&event.RegisterBorrowable{Header: h.header(h.admin), Asset: "USDC", Decimals: 6})
	if !errors.Is(err, state.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig before genesis, got %v", err)
	}

	res := h.mustSubmit(&event.InitializeProtocol{Header: h.header(h.admin), Treasury: h.treasury})
	if res.Sequence != 0 {
		t.Fatalf("first committed sequence = %d, want 0", res.Sequence)
	}
	if !h.core.Protocol().IsAdmin(h.admin) {
		t.Fatal("initializer should be admin")
	}

	_, err = h.submit(&event.InitializeProtocol{Header: h.header(h.admin), Treasury: h.treasury})
	if !errors.Is(err, state.ErrInvalidConfig) {
		t.Fatalf("expected second initialization to fail, got %v", err)
	}
}

func TestDepositAndBorrow(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()

	res := h.mustSubmit(&event.Borrow{Header: h.header(alice), Asset: "USDC", Amount: 500 * oneUSDC})
	if len(res.Events) != 1 {
		t.Fatalf("expected 1 domain event, got %d", len(res.Events))
	}
	borrowed, ok := res.Events[0].(event.Borrowed)
	if !ok {
		t.Fatalf("expected Borrowed, got %T", res.Events[0])
	}
	if borrowed.LTVAfterBps != 5_000 {
		t.Errorf("LTV after borrow = %d bps, want 5000", borrowed.LTVAfterBps)
	}

	if got := h.balance(ledger.WalletAccount(alice, ledger.AssetUSDC)); got != 500*oneUSDC {
		t.Errorf("alice USDC wallet = %d, want %d", got, 500*oneUSDC)
	}
	if got := h.balance(ledger.CollateralVault(alice, ledger.AssetSOL)); got != 10*oneSOL {
		t.Errorf("alice SOL vault = %d, want %d", got, 10*oneSOL)
	}
	p, _ := h.core.Pool(ledger.AssetUSDC)
	if p.TotalBorrowed != 500*oneUSDC {
		t.Errorf("pool borrowed = %d", p.TotalBorrowed)
	}
	if got := h.balance(ledger.PoolLiquidity(ledger.AssetUSDC)); got != p.TotalDeposits-p.TotalBorrowed {
		t.Errorf("pool vault %d != deposits-borrowed %d", got, p.TotalDeposits-p.TotalBorrowed)
	}

	pos := h.core.Position(alice)
	if entry, ok := pos.Borrow(ledger.AssetUSDC); !ok || entry.Principal != 500*oneUSDC {
		t.Errorf("position borrow entry = %+v", entry)
	}
}

func TestBorrowAboveLTVLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()

	hashBefore := h.core.StateHash()
	seqBefore := h.core.NextSequence()
	poolBefore := h.balance(ledger.PoolLiquidity(ledger.AssetUSDC))

	_, err := h.submit(&event.Borrow{Header: h.header(alice), Asset: "USDC", Amount: 800 * oneUSDC})
	if !errors.Is(err, state.ErrExceedsLTV) {
		t.Fatalf("expected ErrExceedsLTV, got %v", err)
	}
	if h.core.StateHash() != hashBefore {
		t.Error("state hash changed after rejection")
	}
	if h.core.NextSequence() != seqBefore {
		t.Errorf("sequence advanced after rejection: %d -> %d", seqBefore, h.core.NextSequence())
	}
	if got := h.balance(ledger.PoolLiquidity(ledger.AssetUSDC)); got != poolBefore {
		t.Errorf("pool vault changed: %d -> %d", poolBefore, got)
	}
	if _, ok := h.core.Position(alice).Borrow(ledger.AssetUSDC); ok {
		t.Error("rejected borrow left a debt entry")
	}
}

func TestBackdatedCommandRejected(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()
	seqBefore := h.core.NextSequence()
	last := h.core.LastTimestamp()

	hdr := h.header(alice)
	hdr.Timestamp = time.Unix(last, 0).Add(-time.Minute).UTC()
	_, err := h.submit(&event.Borrow{Header: hdr, Asset: "USDC", Amount: 100 * oneUSDC})
	if !errors.Is(err, state.ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}
	if h.core.NextSequence() != seqBefore {
		t.Errorf("sequence advanced after rejection: %d -> %d", seqBefore, h.core.NextSequence())
	}

	// The same instant as the last commit is still accepted.
	same := h.header(alice)
	same.Timestamp = time.Unix(last, 0).UTC()
	h.mustSubmit(&event.Borrow{Header: same, Asset: "USDC", Amount: 100 * oneUSDC})

	// The floor survives a snapshot round trip.
	data, err := core.EncodeSnapshot(h.core.Snapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored := newHarness(t)
	if err := restored.core.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.core.LastTimestamp() != last {
		t.Errorf("restored clock = %d, want %d", restored.core.LastTimestamp(), last)
	}
}

func TestDuplicateCommandIsNoop(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()
	h.credit(alice, "SOL", oneSOL)

	dep := &event.Deposit{Header: h.header(alice), Asset: "SOL", Amount: oneSOL}
	first := h.mustSubmit(dep)
	second := h.mustSubmit(dep)

	if first.Duplicate || !second.Duplicate {
		t.Fatalf("duplicate flags: first=%v second=%v", first.Duplicate, second.Duplicate)
	}
	if second.StateHash != first.StateHash {
		t.Error("duplicate changed the state hash")
	}
	if got := h.balance(ledger.CollateralVault(alice, ledger.AssetSOL)); got != 11*oneSOL {
		t.Errorf("vault = %d, want %d", got, 11*oneSOL)
	}
}

func TestBridgeSequenceIsStrict(t *testing.T) {
	h := newHarness(t)
	h.genesis()
	alice := uuid.New()
	h.credit(alice, "USDC", oneUSDC) // seq 0

	_, err := h.submit(&event.WalletCredit{
		Header: h.header(h.admin), Owner: alice, Asset: "USDC", Amount: oneUSDC, Chain: "solana", Sequence: 5,
	})
	if !errors.Is(err, state.ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}

	_, err = h.submit(&event.WalletCredit{
		Header: h.header(h.admin), Owner: alice, Asset: "USDC", Amount: oneUSDC, Chain: "solana", Sequence: 0,
	})
	if !errors.Is(err, state.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	// A rejected command does not consume the sequence.
	h.credit(alice, "USDC", oneUSDC) // seq 1
	if got := h.core.ExpectedSourceSequence("bridge:solana"); got != 2 {
		t.Errorf("expected next bridge sequence 2, got %d", got)
	}
	if got := h.balance(ledger.WalletAccount(alice, ledger.AssetUSDC)); got != 2*oneUSDC {
		t.Errorf("wallet = %d", got)
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	h.genesis()
	mallory := uuid.New()

	_, err := h.submit(&event.UpdatePrice{Header: h.header(mallory), Asset: "SOL", PriceUSD: 1})
	if !errors.Is(err, state.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = h.submit(&event.WalletCredit{
		Header: h.header(mallory), Owner: mallory, Asset: "USDC", Amount: oneUSDC, Chain: "solana",
	})
	if !errors.Is(err, state.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bridge credit, got %v", err)
	}
}

func TestPauseBlocksUserCommands(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()

	h.mustSubmit(&event.SetPaused{Header: h.header(h.admin), Paused: true})

	_, err := h.submit(&event.Borrow{Header: h.header(alice), Asset: "USDC", Amount: oneUSDC})
	if !errors.Is(err, state.ErrProtocolPaused) {
		t.Fatalf("expected ErrProtocolPaused, got %v", err)
	}
	// Admin commands still run while paused.
	h.mustSubmit(&event.UpdatePrice{Header: h.header(h.admin), Asset: "SOL", PriceUSD: solPrice})

	h.mustSubmit(&event.SetPaused{Header: h.header(h.admin), Paused: false})
	h.mustSubmit(&event.Borrow{Header: h.header(alice), Asset: "USDC", Amount: oneUSDC})
}

func TestOracleSyncDropsStaleSequence(t *testing.T) {
	h := newHarness(t)
	h.genesis()
	keeper := uuid.New()

	sync := func(seq int64, price int64) (*core.Result, error) {
		hdr := h.header(keeper)
		account := oracle.EncodeAccount(oracle.Quote{
			Price:       price,
			Conf:        1_000_000,
			Expo:        -8,
			PublishTime: hdr.Timestamp.Unix(),
		})
		return h.submit(&event.SyncOraclePrice{Header: hdr, Asset: "SOL", Account: account, Sequence: seq})
	}

	res, err := sync(3, 10_500_000_000) // $105
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Stale {
		t.Fatal("first quote reported stale")
	}
	feed, _ := h.core.Feed(ledger.AssetSOL)
	if feed.PriceUSD != 105_000_000 {
		t.Errorf("price = %d, want 105000000", feed.PriceUSD)
	}

	res, err = sync(2, 9_000_000_000)
	if err != nil {
		t.Fatalf("stale sync: %v", err)
	}
	if !res.Stale {
		t.Error("older sequence should be stale")
	}
	feed, _ = h.core.Feed(ledger.AssetSOL)
	if feed.PriceUSD != 105_000_000 {
		t.Errorf("stale quote moved price to %d", feed.PriceUSD)
	}
}

func TestFlashLoanFeeAccruesToLendersAndInsurance(t *testing.T) {
	h := newHarness(t)
	lp, _ := h.funded()

	p, _ := h.core.Pool(ledger.AssetUSDC)
	depositsBefore := p.TotalDeposits

	res := h.mustSubmit(&event.FlashLoan{
		Header: h.header(lp), Asset: "USDC", Amount: 100_000 * oneUSDC, Receiver: core.HoldReceiver,
	})
	var executed *event.FlashLoanExecuted
	for _, e := range res.Events {
		if fl, ok := e.(event.FlashLoanExecuted); ok {
			executed = &fl
		}
	}
	if executed == nil || executed.Fee != 50*oneUSDC {
		t.Fatalf("flash loan event = %+v, want fee %d", executed, 50*oneUSDC)
	}

	if got := h.balance(ledger.InsuranceFundAccount(ledger.AssetUSDC)); got != 2_500_000 {
		t.Errorf("insurance = %d, want 2500000", got)
	}
	p, _ = h.core.Pool(ledger.AssetUSDC)
	if p.TotalDeposits-depositsBefore != 47_500_000 {
		t.Errorf("lender yield = %d, want 47500000", p.TotalDeposits-depositsBefore)
	}
	if h.core.Protocol().InsuranceFund[ledger.AssetUSDC] != 2_500_000 {
		t.Errorf("protocol insurance mirror = %d", h.core.Protocol().InsuranceFund[ledger.AssetUSDC])
	}
}

func TestFlashLoanWithoutFeeFails(t *testing.T) {
	h := newHarness(t)
	h.funded()
	broke := uuid.New()

	hashBefore := h.core.StateHash()
	_, err := h.submit(&event.FlashLoan{
		Header: h.header(broke), Asset: "USDC", Amount: 1_000 * oneUSDC, Receiver: core.HoldReceiver,
	})
	if !errors.Is(err, state.ErrFlashLoanNotRepaid) {
		t.Fatalf("expected ErrFlashLoanNotRepaid, got %v", err)
	}
	if h.core.StateHash() != hashBefore {
		t.Error("failed flash loan changed state")
	}

	_, err = h.submit(&event.FlashLoan{Header: h.header(broke), Asset: "USDC", Amount: oneUSDC, Receiver: "nope"})
	if !errors.Is(err, state.ErrInvalidCommand) {
		t.Fatalf("expected unknown receiver to be rejected, got %v", err)
	}
}

func TestGadCrankDeleveragesUnhealthyPosition(t *testing.T) {
	h := newHarness(t)
	_, alice := h.funded()
	cranker := uuid.New()

	borrowHdr := h.header(alice)
	h.mustSubmit(&event.Borrow{Header: borrowHdr, Asset: "USDC", Amount: 700 * oneUSDC})

	_, err := h.submit(&event.CrankGad{Header: h.header(cranker), Owner: alice})
	if !errors.Is(err, state.ErrCrankTooSoon) {
		t.Fatalf("expected the crank clock to start at the borrow, got %v", err)
	}

	h.advance(time.Hour, solPrice)
	_, err = h.submit(&event.CrankGad{Header: h.header(cranker), Owner: alice})
	if !errors.Is(err, state.ErrLtvBelowGadThreshold) {
		t.Fatalf("expected healthy position to be left alone, got %v", err)
	}

	// $80 SOL puts the position at 87.5% LTV.
	h.mustSubmit(&event.UpdatePrice{Header: h.header(h.admin), Asset: "SOL", PriceUSD: 80_000_000})

	crankHdr := h.header(cranker)
	res := h.mustSubmit(&event.CrankGad{Header: crankHdr, Owner: alice})
	var exec *event.GadExecuted
	for _, e := range res.Events {
		if g, ok := e.(event.GadExecuted); ok {
			exec = &g
		}
	}
	if exec == nil {
		t.Fatal("no GadExecuted event")
	}
	if exec.LTVBeforeBps != 8_750 {
		t.Errorf("LTV before = %d, want 8750", exec.LTVBeforeBps)
	}
	if exec.LTVAfterBps >= exec.LTVBeforeBps {
		t.Errorf("LTV did not fall: %d -> %d", exec.LTVBeforeBps, exec.LTVAfterBps)
	}
	// Capped 1000 bps/day over the time since the borrow, about an hour.
	elapsed := int64(crankHdr.Timestamp.Sub(borrowHdr.Timestamp) / time.Second)
	if want := 10 * oneSOL * 1_000 * elapsed / (10_000 * 86_400); exec.LiquidatedAmount != want {
		t.Errorf("liquidated = %d, want %d for %ds at the capped rate", exec.LiquidatedAmount, want, elapsed)
	}

	if got := h.balance(ledger.WalletAccount(cranker, ledger.AssetSOL)); got != exec.RewardAmount || got == 0 {
		t.Errorf("cranker reward = %d, event says %d", got, exec.RewardAmount)
	}
	if got := h.balance(ledger.TreasuryAccount(ledger.AssetSOL)); got != exec.LiquidatedAmount {
		t.Errorf("treasury received %d, want %d", got, exec.LiquidatedAmount)
	}
	want := 10*oneSOL - exec.LiquidatedAmount - exec.RewardAmount
	if got := h.balance(ledger.CollateralVault(alice, ledger.AssetSOL)); got != want {
		t.Errorf("vault = %d, want %d", got, want)
	}

	_, err = h.submit(&event.CrankGad{Header: h.header(cranker), Owner: alice})
	if !errors.Is(err, state.ErrCrankTooSoon) {
		t.Fatalf("expected ErrCrankTooSoon, got %v", err)
	}
}

func TestLeverageOpenAndClose(t *testing.T) {
	h := newHarness(t)
	h.funded()
	dave := uuid.New()
	h.credit(dave, "SOL", 2*oneSOL)
	id := uuid.New()

	h.mustSubmit(&event.OpenLeverage{
		Header:            h.header(dave),
		ID:                id,
		CollateralAsset:   "SOL",
		BorrowAsset:       "USDC",
		InitialCollateral: oneSOL,
		Multiplier:        2,
	})
	lp, err := h.core.Leverage(id)
	if err != nil {
		t.Fatalf("leverage position: %v", err)
	}
	if !lp.Active || !lp.IsLong || lp.TotalBorrowed != 100*oneUSDC {
		t.Fatalf("opened position = %+v", lp)
	}
	if lp.TotalCollateral <= oneSOL {
		t.Errorf("total collateral %d did not grow", lp.TotalCollateral)
	}

	_, err = h.submit(&event.OpenLeverage{
		Header: h.header(dave), ID: id, CollateralAsset: "SOL", BorrowAsset: "USDC",
		InitialCollateral: oneSOL, Multiplier: 2,
	})
	if !errors.Is(err, state.ErrInvalidCommand) {
		t.Fatalf("expected reused id to be rejected, got %v", err)
	}

	_, err = h.submit(&event.CloseLeverage{Header: h.header(uuid.New()), ID: id})
	if !errors.Is(err, state.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a stranger, got %v", err)
	}

	h.mustSubmit(&event.CloseLeverage{Header: h.header(dave), ID: id})
	lp, _ = h.core.Leverage(id)
	if lp.Active {
		t.Error("position still active after close")
	}
	if h.core.Position(dave).HasDebt() {
		t.Error("debt left after close")
	}
	if got := h.balance(ledger.WalletAccount(dave, ledger.AssetSOL)); got <= oneSOL {
		t.Errorf("dave SOL wallet = %d, expected collateral returned", got)
	}
	if open := h.core.LeverageByOwner(dave); len(open) != 1 {
		t.Errorf("expected closed position to stay in the book, got %d", len(open))
	}
}

func TestSnapshotRestoreContinuesChain(t *testing.T) {
	live := newHarness(t)
	_, alice := live.funded()
	borrow := &event.Borrow{Header: live.header(alice), Asset: "USDC", Amount: 250 * oneUSDC}
	live.mustSubmit(borrow)

	data, err := core.EncodeSnapshot(live.core.Snapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	restored := newHarness(t)
	if err := restored.core.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.core.StateHash() != live.core.StateHash() {
		t.Fatal("restored hash differs")
	}

	next := &event.Repay{Header: live.header(alice), Asset: "USDC", Amount: 100 * oneUSDC}
	a := live.mustSubmit(next)
	b := restored.mustSubmit(next)
	if a.Sequence != b.Sequence || a.StateHash != b.StateHash {
		t.Fatalf("chains diverged: live (%d, %x) restored (%d, %x)", a.Sequence, a.StateHash, b.Sequence, b.StateHash)
	}

	// Keys captured in the snapshot are still deduplicated.
	again := restored.mustSubmit(borrow)
	if !again.Duplicate {
		t.Error("replayed key was not deduplicated after restore")
	}
}

func TestReplayReproducesStateHash(t *testing.T) {
	live := newHarness(t)
	_, alice := live.funded()
	live.mustSubmit(&event.Borrow{Header: live.header(alice), Asset: "USDC", Amount: 300 * oneUSDC})
	live.mustSubmit(&event.Repay{Header: live.header(alice), Asset: "USDC", Amount: 50 * oneUSDC})

	replica := newHarness(t)
	n := len(live.persist)
	for i := 0; i < n; i++ {
		out := <-live.persist
		if err := replica.core.Replay(out.Envelope); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}
	if replica.core.StateHash() != live.core.StateHash() {
		t.Fatal("replayed hash differs from live")
	}
	if len(replica.persist) != 0 {
		t.Error("replay emitted persistence output")
	}
}

func TestRunnerSerializesSubmitAndView(t *testing.T) {
	h := newHarness(t)
	runner := core.NewRunner(h.core, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	res, err := runner.Submit(ctx, &event.InitializeProtocol{Header: h.header(h.admin), Treasury: h.treasury})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	var seq int64
	if err := runner.View(ctx, func(c *core.DeterministicCore) { seq = c.NextSequence() }); err != nil {
		t.Fatalf("view: %v", err)
	}
	if seq != res.Sequence+1 {
		t.Errorf("next sequence = %d, want %d", seq, res.Sequence+1)
	}

	snap, err := runner.Snapshot(ctx)
	if err != nil || snap.Sequence != res.Sequence {
		t.Fatalf("snapshot = %+v, %v", snap, err)
	}

	cancel()
	<-done
	if _, err := runner.Submit(context.Background(), &event.SetPaused{Header: h.header(h.admin)}); !errors.Is(err, core.ErrRunnerStopped) {
		t.Errorf("expected ErrRunnerStopped, got %v", err)
	}
}
