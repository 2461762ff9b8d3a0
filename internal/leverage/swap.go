package leverage

import (
	"fmt"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// Swapper exchanges assets held in an owner's custody wallet.
type Swapper interface {
	Swap(env *state.Env, owner uuid.UUID, from, to ledger.AssetID, amountIn int64) (int64, error)
}

// OracleSwapper fills swaps at the oracle price less a fixed slippage,
// settling against the external swap venue accounts.
type OracleSwapper struct {
	SlippageBps int64
}

func (s OracleSwapper) Swap(env *state.Env, owner uuid.UUID, from, to ledger.AssetID, amountIn int64) (int64, error) {
	if amountIn <= 0 {
		return 0, fmt.Errorf("%w: swap %d", state.ErrInvalidAmount, amountIn)
	}
	ev := env.Evaluator()
	usd, err := ev.CollateralUSD(from, amountIn, env.Now)
	if err != nil {
		return 0, err
	}
	net, err := fpmath.MulDiv(usd, fpmath.BpsDenominator-s.SlippageBps, fpmath.BpsDenominator, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	out, err := ev.TokenAmount(to, net, env.Now)
	if err != nil {
		return 0, err
	}
	if out == 0 {
		return 0, fmt.Errorf("%w: %d %s buys no %s", state.ErrSlippageExceeded, amountIn, from, to)
	}

	if err := env.Custody.Transfer(ledger.JournalTypeSwap,
		ledger.WalletAccount(owner, from), ledger.SwapVenueAccount(from), amountIn); err != nil {
		return 0, err
	}
	if err := env.Custody.Transfer(ledger.JournalTypeSwap,
		ledger.SwapVenueAccount(to), ledger.WalletAccount(owner, to), out); err != nil {
		return 0, err
	}
	return out, nil
}
