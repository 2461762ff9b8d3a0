package ledger_test

import (
	"errors"
	"testing"

	"LendLedger/internal/ledger"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.CollateralVault(userID, ledger.AssetSOL)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral:SOL"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := ledger.InsuranceFundAccount(ledger.AssetUSDC)

	path := key.AccountPath()
	if path != "system:insurance_fund:USDC" {
		t.Errorf("got %q, want %q", path, "system:insurance_fund:USDC")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.BridgeAccount(ledger.AssetUSDC)

	path := key.AccountPath()
	if path != "external:bridge:USDC" {
		t.Errorf("got %q, want %q", path, "external:bridge:USDC")
	}
}

func TestAccountKey_MayGoNegative(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		key  ledger.AccountKey
		want bool
	}{
		{ledger.WalletAccount(owner, ledger.AssetUSDC), false},
		{ledger.CollateralVault(owner, ledger.AssetSOL), false},
		{ledger.PoolLiquidity(ledger.AssetUSDC), false},
		{ledger.TreasuryAccount(ledger.AssetSOL), false},
		{ledger.GadSettlementAccount(ledger.AssetUSDC), true},
		{ledger.BridgeAccount(ledger.AssetSOL), true},
		{ledger.SwapVenueAccount(ledger.AssetSOL), true},
		{ledger.ShareSupplyAccount(ledger.AssetUSDC), true},
		{ledger.LpShareAccount(owner, ledger.AssetUSDC), false},
	}
	for _, tc := range cases {
		if got := tc.key.MayGoNegative(); got != tc.want {
			t.Errorf("%s: MayGoNegative=%v, want %v", tc.key.AccountPath(), got, tc.want)
		}
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("SOL")
	if !ok {
		t.Fatal("SOL should be a known asset")
	}
	if id != ledger.AssetSOL {
		t.Errorf("SOL id: got %d, want %d", id, ledger.AssetSOL)
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func creditWallet(t *testing.T, bt *ledger.BalanceTracker, owner uuid.UUID, asset ledger.AssetID, amount int64) {
	t.Helper()
	s := ledger.NewStaging(bt, uuid.NewString(), 1)
	if err := s.Transfer(ledger.JournalTypeWalletCredit, ledger.BridgeAccount(asset), ledger.WalletAccount(owner, asset), amount); err != nil {
		t.Fatalf("stage credit: %v", err)
	}
	if err := bt.ApplyBatch(s.Build(1)); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
}

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if got := bt.GetWalletBalance(uuid.New(), ledger.AssetUSDC); got != 0 {
		t.Errorf("initial balance should be 0, got %d", got)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.WalletAccount(userID, ledger.AssetUSDC),
		CreditAccount: ledger.BridgeAccount(ledger.AssetUSDC),
		AssetID:       ledger.AssetUSDC,
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	if got := bt.GetWalletBalance(userID, ledger.AssetUSDC); got != 1_000_000 {
		t.Errorf("wallet: got %d, want 1_000_000", got)
	}
	if got := bt.GetBalance(ledger.BridgeAccount(ledger.AssetUSDC)); got != -1_000_000 {
		t.Errorf("bridge: got %d, want -1_000_000", got)
	}
}

func TestBalanceTracker_ApplyBatch_AllOrNothing(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	creditWallet(t, bt, userID, ledger.AssetSOL, 100)

	batchID := uuid.New()
	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.CollateralVault(userID, ledger.AssetSOL),
				CreditAccount: ledger.WalletAccount(userID, ledger.AssetSOL),
				AssetID:       ledger.AssetSOL,
				Amount:        60,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.TreasuryAccount(ledger.AssetSOL),
				CreditAccount: ledger.WalletAccount(userID, ledger.AssetSOL),
				AssetID:       ledger.AssetSOL,
				Amount:        60,
			},
		},
	}

	err := bt.ApplyBatch(batch)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := bt.GetWalletBalance(userID, ledger.AssetSOL); got != 100 {
		t.Errorf("wallet must be untouched after rejected batch, got %d", got)
	}
	if got := bt.GetCollateralBalance(userID, ledger.AssetSOL); got != 0 {
		t.Errorf("vault must be untouched after rejected batch, got %d", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	creditWallet(t, bt, userID, ledger.AssetUSDC, 1_000_000)

	v := ledger.NewInvariantValidator(bt)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance should be zero-sum: %v", err)
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	creditWallet(t, bt, userID, ledger.AssetUSDC, 42)

	snap := bt.Snapshot()
	restored := ledger.NewBalanceTracker()
	restored.Restore(snap)

	if got := restored.GetWalletBalance(userID, ledger.AssetUSDC); got != 42 {
		t.Errorf("restored wallet: got %d, want 42", got)
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatch_Validate_Empty(t *testing.T) {
	b := &ledger.Batch{BatchID: uuid.New()}
	if err := b.Validate(); err == nil {
		t.Error("empty batch should be invalid")
	}
}

func TestBatch_Validate_NonPositive(t *testing.T) {
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			BatchID:       batchID,
			DebitAccount:  ledger.TreasuryAccount(ledger.AssetUSDC),
			CreditAccount: ledger.PoolLiquidity(ledger.AssetUSDC),
			AssetID:       ledger.AssetUSDC,
			Amount:        0,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("zero-amount journal should be invalid")
	}
}

func TestBatch_Validate_MixedAssets(t *testing.T) {
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			BatchID:       batchID,
			DebitAccount:  ledger.TreasuryAccount(ledger.AssetSOL),
			CreditAccount: ledger.PoolLiquidity(ledger.AssetUSDC),
			AssetID:       ledger.AssetUSDC,
			Amount:        1,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("journal mixing assets should be invalid")
	}
}

// ============================================================================
// Test: Staging
// ============================================================================

func TestStaging_BalanceIncludesPending(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	creditWallet(t, bt, userID, ledger.AssetSOL, 100)

	s := ledger.NewStaging(bt, "cmd-1", 10)
	wallet := ledger.WalletAccount(userID, ledger.AssetSOL)
	vault := ledger.CollateralVault(userID, ledger.AssetSOL)

	if err := s.Transfer(ledger.JournalTypeCollateralDeposit, wallet, vault, 70); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if got := s.Balance(wallet); got != 30 {
		t.Errorf("staged wallet: got %d, want 30", got)
	}
	if got := bt.GetWalletBalance(userID, ledger.AssetSOL); got != 100 {
		t.Errorf("tracker must not change before commit, got %d", got)
	}

	err := s.Transfer(ledger.JournalTypeCollateralDeposit, wallet, vault, 31)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed transfer must not be staged, have %d journals", s.Len())
	}
}

func TestStaging_ZeroAmountNoop(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	s := ledger.NewStaging(bt, "cmd-0", 1)
	if err := s.Transfer(ledger.JournalTypeGadCrankerReward, ledger.TreasuryAccount(ledger.AssetSOL), ledger.WalletAccount(uuid.New(), ledger.AssetSOL), 0); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if s.Build(1) != nil {
		t.Error("empty staging should build nil batch")
	}
}

func TestStaging_DeterministicIDs(t *testing.T) {
	build := func() *ledger.Batch {
		bt := ledger.NewBalanceTracker()
		s := ledger.NewStaging(bt, "cmd-det", 5)
		owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
		if err := s.Transfer(ledger.JournalTypeWalletCredit, ledger.BridgeAccount(ledger.AssetUSDC), ledger.WalletAccount(owner, ledger.AssetUSDC), 9); err != nil {
			t.Fatalf("transfer: %v", err)
		}
		return s.Build(7)
	}
	a, b := build(), build()
	if a.BatchID != b.BatchID || a.Journals[0].JournalID != b.Journals[0].JournalID {
		t.Error("batch and journal IDs must be derived from the event ref")
	}
	if a.Journals[0].Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", a.Journals[0].Sequence)
	}
}
