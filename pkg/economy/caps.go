package economy

// effectiveCap resolves the ceiling applied to a wallet: an explicit wallet
// override wins, otherwise the treasury's global default. Zero means
// uncapped.
func effectiveCap(wallet Wallet, treasury Treasury) int64 {
	if wallet.CapOverride != nil {
		return *wallet.CapOverride
	}
	return treasury.WalletCapAmount
}

// clipCredit reduces a proposed credit so the wallet never lands above its
// cap. Legitimate earns are capped, not rejected; a zero result is the
// caller's signal that the wallet is already full.
func clipCredit(currentBalance int64, proposed int64, cap int64) int64 {
	if cap <= 0 {
		return proposed
	}
	if currentBalance >= cap {
		return 0
	}
	headroom := cap - currentBalance
	if proposed > headroom {
		return headroom
	}
	return proposed
}
