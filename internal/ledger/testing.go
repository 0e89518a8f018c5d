package ledger

// CommittedWallet is a test helper that returns the committed wallet row for a
// customer when using the in-memory ledger.
func CommittedWallet(s Store, customerID int64) (Wallet, bool) {
	mem, ok := s.(*inMemoryLedger)
	if !ok {
		return Wallet{}, false
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	w, ok := mem.wallets[customerID]
	return w, ok
}

// CommittedChanges is a test helper that returns the committed balance and
// status changes of a wallet when using the in-memory ledger.
func CommittedChanges(s Store, walletID int64) ([]BalanceChange, []StatusChange) {
	mem, ok := s.(*inMemoryLedger)
	if !ok {
		return nil, nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return append([]BalanceChange(nil), mem.balanceChanges[walletID]...),
		append([]StatusChange(nil), mem.statusChanges[walletID]...)
}
