package state

import (
	"fmt"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	if err := s.validateTransaction(signedTx); err != nil {
		return err
	}

	if _, err := s.mempool.Upsert(signedTx); err != nil {
		return err
	}

	s.Worker.SignalShareTx(signedTx)
	s.Worker.SignalStartMining()

	return nil
}

// SubmitNodeTransaction accepts a transaction from a peer node for inclusion.
// The transaction is not shared back out, the submitting node already did.
func (s *State) SubmitNodeTransaction(signedTx database.SignedTx) error {
	if err := s.validateTransaction(signedTx); err != nil {
		return err
	}

	if _, err := s.mempool.Upsert(signedTx); err != nil {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}

// =============================================================================

// validateTransaction takes the signed transaction and validates its
// signature, privacy fields, configuration anomaly baseline and replay
// identity against both the confirmed ledger and the pending pool.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(); err != nil {
		return err
	}

	if err := s.monitor.CheckReplay(signedTx); err != nil {
		return err
	}

	if err := s.monitor.CheckTxAnomaly(signedTx); err != nil {
		return err
	}

	if s.mempool.Knows(signedTx.SenderID, signedTx.Nonce) {
		return fmt.Errorf("%w: identity %s already pending", database.ErrDuplicateTransaction, signedTx.UniqueKey())
	}

	return nil
}
