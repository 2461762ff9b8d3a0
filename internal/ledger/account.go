package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet     AccountSubType = iota // free funds held in custody for the owner
	SubTypeCollateral                       // collateral vault backing the owner's position
	SubTypeLpShares                         // pool shares held by a liquidity provider, in share units

	// System sub-types
	SubTypeSystemPoolLiquidity // idle liquidity of the lending pool for an asset
	SubTypeSystemTreasury
	SubTypeSystemInsuranceFund
	SubTypeSystemGadSettlement // protocol obligation created when GAD retires debt
	SubTypeSystemShareSupply   // contra account for minted pool shares

	// External sub-types
	SubTypeExternalBridge
	SubTypeExternalSwapVenue
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

const (
	AssetSOL   AssetID = 1
	AssetCbBTC AssetID = 2
	AssetUSDC  AssetID = 3
	AssetEURC  AssetID = 4
	AssetUSDT  AssetID = 5
)

var (
	assetToID = map[string]AssetID{
		"SOL":   AssetSOL,
		"cbBTC": AssetCbBTC,
		"USDC":  AssetUSDC,
		"EURC":  AssetEURC,
		"USDT":  AssetUSDT,
	}
	idToAsset = map[AssetID]string{
		AssetSOL:   "SOL",
		AssetCbBTC: "cbBTC",
		AssetUSDC:  "USDC",
		AssetEURC:  "EURC",
		AssetUSDT:  "USDT",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// String returns the asset symbol, or "asset(N)" for unknown IDs.
func (a AssetID) String() string {
	if name, ok := idToAsset[a]; ok {
		return name
	}
	return fmt.Sprintf("asset(%d)", uint16(a))
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// Convenience constructors for the accounts the lending flows touch.

func WalletAccount(owner uuid.UUID, asset AssetID) AccountKey {
	return NewUserAccountKey(owner, SubTypeWallet, asset)
}

func CollateralVault(owner uuid.UUID, asset AssetID) AccountKey {
	return NewUserAccountKey(owner, SubTypeCollateral, asset)
}

func LpShareAccount(owner uuid.UUID, asset AssetID) AccountKey {
	return NewUserAccountKey(owner, SubTypeLpShares, asset)
}

func ShareSupplyAccount(asset AssetID) AccountKey {
	return NewSystemAccountKey("pool", SubTypeSystemShareSupply, asset)
}

func PoolLiquidity(asset AssetID) AccountKey {
	return NewSystemAccountKey("pool", SubTypeSystemPoolLiquidity, asset)
}

func TreasuryAccount(asset AssetID) AccountKey {
	return NewSystemAccountKey("treasury", SubTypeSystemTreasury, asset)
}

func InsuranceFundAccount(asset AssetID) AccountKey {
	return NewSystemAccountKey("insurance", SubTypeSystemInsuranceFund, asset)
}

func GadSettlementAccount(asset AssetID) AccountKey {
	return NewSystemAccountKey("gad", SubTypeSystemGadSettlement, asset)
}

func BridgeAccount(asset AssetID) AccountKey {
	return NewExternalAccountKey(SubTypeExternalBridge, asset)
}

func SwapVenueAccount(asset AssetID) AccountKey {
	return NewExternalAccountKey(SubTypeExternalSwapVenue, asset)
}

// MayGoNegative reports whether the account is allowed to carry a negative
// balance. External boundary accounts mirror the outside world, the GAD
// settlement account records debt retired against liquidated collateral and
// the share supply account is minus the outstanding pool shares.
func (k AccountKey) MayGoNegative() bool {
	if k.Scope == AccountScopeExternal {
		return true
	}
	if k.Scope != AccountScopeSystem {
		return false
	}
	return k.SubType == SubTypeSystemGadSettlement || k.SubType == SubTypeSystemShareSupply
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName := k.AssetID.String()

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeCollateral:
		return "collateral"
	case SubTypeLpShares:
		return "lp_shares"
	case SubTypeSystemShareSupply:
		return "share_supply"
	case SubTypeSystemPoolLiquidity:
		return "pool_liquidity"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeSystemInsuranceFund:
		return "insurance_fund"
	case SubTypeSystemGadSettlement:
		return "gad_settlement"
	case SubTypeExternalBridge:
		return "bridge"
	case SubTypeExternalSwapVenue:
		return "swap_venue"
	default:
		return "unknown"
	}
}
