package state

import (
	"context"
	"errors"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/chain"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/consensus"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a valid proof that can
// become the next head of the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	trans := s.mempool.PickBest(s.genesis.TransPerBlock)
	if len(trans) == 0 && !s.genesis.AllowEmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	head := s.chain.Head()

	block, err := database.Assemble(database.AssembleArgs{
		Height:          head.Header.Height + 1,
		PrevBlockHash:   head.Hash(),
		ParentTimeStamp: head.Header.TimeStamp,
		ProposerID:      s.proposerID,
		Trans:           trans,
		AllowEmpty:      s.genesis.AllowEmptyBlocks,
	})
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: generate proof of compute")

	// Attempt to seal the block by solving the proof. This can be cancelled.
	err = s.engine.GenerateProof(ctx, &block, consensus.ProofArgs{
		StakeWeight:      s.stakeWeight,
		StakeAttestation: s.stakeAttestation,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: admit block into the forest")

	if _, err := s.admitBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, runs the full
// admission pipeline and, if that passes, links it into the forest.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: blk[%s]", block.Hash())
	defer s.evHandler("state: ProcessProposedBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	_, err := s.admitBlock(block)
	return err
}

// =============================================================================

// admitBlock links the block into the forest and, when the head moves,
// updates the pending pool, the consensus state, the security monitor and
// the incentive book. Either everything updates or nothing does.
func (s *State) admitBlock(block database.Block) (chain.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.chain.Add(block)
	if err != nil {
		return chain.AddResult{}, err
	}

	if result.Orphaned {
		s.evHandler("state: admitBlock: blk[%s]: parked as orphan", block.Hash())
		return result, nil
	}

	if !result.HeadChanged {
		s.evHandler("state: admitBlock: blk[%s]: linked on side branch", block.Hash())
		return result, nil
	}

	head := s.chain.Head()
	branch, _ := s.chain.BranchTo(head.Hash())

	switch {
	case result.Reorganized:
		s.evHandler("state: admitBlock: REORGANIZED: new head blk[%d]:[%s]", head.Header.Height, head.Hash())

		// The monitor and the incentive book only describe the canonical
		// branch, so both are rebuilt from it.
		s.monitor.Rebuild(branch)
		s.rebuildIncentives(branch)

		// Transactions only the abandoned branch carried go back to the
		// pending pool.
		for _, tx := range result.ReturnedTrans {
			s.mempool.Upsert(tx)
		}
		for _, blk := range branch[1:] {
			s.removeFromMempool(blk)
		}
		s.recordedHeight = head.Header.Height

	default:
		// The head extended: fold in only the blocks past the previous head.
		for _, blk := range branch {
			if blk.Header.Height <= s.recordedHeight || blk.Header.Height == 0 {
				continue
			}
			s.monitor.Record(blk)
			s.incentives[blk.Header.ProposerID] += s.engine.ComputeIncentive(blk)
			s.removeFromMempool(blk)
		}
		s.recordedHeight = head.Header.Height
	}

	s.engine.RecordBlock(branch)

	return result, nil
}

// removeFromMempool drops the block's transactions from the pending pool.
func (s *State) removeFromMempool(block database.Block) {
	for _, tx := range block.Transactions() {
		s.mempool.Delete(tx)
	}
}

// rebuildIncentives recomputes the incentive book from the canonical branch.
func (s *State) rebuildIncentives(branch []database.Block) {
	s.incentives = make(map[database.AccountID]uint64)
	for _, block := range branch[1:] {
		s.incentives[block.Header.ProposerID] += s.engine.ComputeIncentive(block)
	}
}
