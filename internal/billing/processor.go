// Package billing owns the per-minute charging engine: the pure tick
// processor, the per-call timer loop, and the billing unit records.
package billing

// TickStatus is the outcome of one billing evaluation.
type TickStatus string

const (
	// TickOK: the full price was charged and at least one more full tick is
	// coverable.
	TickOK TickStatus = "ok"
	// TickLowBalance: the full price was charged but the remaining balance is
	// positive and below one more price unit. Informational only; the call
	// terminates on the first tick that cannot be fully charged, not here.
	TickLowBalance TickStatus = "low_balance"
	// TickEnded: the balance could not cover the full price. Whatever remained
	// (possibly zero) was charged and the call must end.
	TickEnded TickStatus = "ended"
)

// ComputeTick decides the charge for one tick given the caller's current
// balance and the call's per-minute price.
//
// This is the only place charge amounts are decided. It has no side effects
// and no knowledge of timers, wallets, or broadcast.
//
// Guarantees: 0 <= charged <= pricePerMinute, and balance-charged >= 0.
func ComputeTick(balance, pricePerMinute int64) (charged int64, status TickStatus) {
	if pricePerMinute <= 0 {
		return 0, TickOK
	}
	switch {
	case balance >= pricePerMinute:
		// Low-balance is a warning only when something positive but short of a
		// full unit remains. An exact-zero remainder still reports ok; the
		// next tick charges zero and ends the call.
		remaining := balance - pricePerMinute
		if remaining > 0 && remaining < pricePerMinute {
			return pricePerMinute, TickLowBalance
		}
		return pricePerMinute, TickOK
	case balance > 0:
		return balance, TickEnded
	default:
		return 0, TickEnded
	}
}
