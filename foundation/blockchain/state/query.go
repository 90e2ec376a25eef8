package state

import (
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// QueryLatest represents a query for the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryBlocksByHeight returns the canonical blocks in the height range,
// inclusive on both ends.
func (s *State) QueryBlocksByHeight(from uint64, to uint64) []database.Block {
	head := s.chain.Head().Header.Height

	if from == QueryLatest {
		from = head
		to = head
	}
	if to == QueryLatest {
		to = head
	}

	var out []database.Block
	iter := s.chain.BestChain()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return out
		}
		if block.Header.Height >= from && block.Header.Height <= to {
			out = append(out, block)
		}
	}

	return out
}

// QueryBlockByHash returns the block with the given hash if it is linked
// into the forest, canonical or not.
func (s *State) QueryBlockByHash(hash string) (database.Block, bool) {
	return s.chain.GetBlock(hash)
}

// QueryBlocksByAccount returns the canonical blocks carrying a transaction
// signed by the account. An empty account returns every canonical block
// with transactions.
func (s *State) QueryBlocksByAccount(accountID database.AccountID) []database.Block {
	var out []database.Block

	iter := s.chain.BestChain()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return out
		}

		for _, tx := range block.Transactions() {
			if accountID == "" || tx.SenderID == accountID {
				out = append(out, block)
				break
			}
		}
	}

	return out
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryOrphanCount returns the number of blocks parked waiting for a parent.
func (s *State) QueryOrphanCount() int {
	return s.chain.OrphanCount()
}

// QueryRequiredConfirmations returns the number of blocks that must build
// on top of a transaction before a hostile rewrite is less likely than the
// chain's risk threshold.
func (s *State) QueryRequiredConfirmations(hostileFraction float64) uint {
	return s.monitor.RequiredConfirmations(hostileFraction)
}

// QueryIncentiveForBlock computes the proposer incentive a single block pays.
func (s *State) QueryIncentiveForBlock(block database.Block) uint64 {
	return s.engine.ComputeIncentive(block)
}

// QueryCurrentTarget returns the active difficulty target in leading zero bits.
func (s *State) QueryCurrentTarget() uint {
	return s.engine.CurrentTarget()
}

// QueryObservedInterval returns the average seconds between recent blocks
// over the retarget window.
func (s *State) QueryObservedInterval() uint64 {
	return s.engine.ObservedInterval()
}
