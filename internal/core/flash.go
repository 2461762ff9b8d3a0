package core

import "LendLedger/internal/pool"

// HoldReceiver is the default flash receiver: it does nothing, so the
// borrower's wallet must already hold the fee when the loan is repaid.
const HoldReceiver = "hold"

// RegisterFlashReceiver makes fn callable by name from FlashLoan commands.
// Receivers run on the core goroutine inside the command's transaction and
// may only move funds through the custody they are handed. Register before
// the core starts processing.
func (c *DeterministicCore) RegisterFlashReceiver(name string, fn pool.FlashReceiver) {
	c.flash[name] = fn
}
