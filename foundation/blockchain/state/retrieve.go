package state

import (
	"github.com/aetherlabs/aetherchain/foundation/blockchain/chain"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/peer"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/security"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveHead returns a copy of the current head block.
func (s *State) RetrieveHead() database.Block {
	return s.chain.Head()
}

// RetrieveHeadWeight returns the cumulative weight of the canonical branch.
func (s *State) RetrieveHeadWeight() uint64 {
	return s.chain.HeadWeight()
}

// RetrieveMempool returns a copy of the mempool in selection order.
func (s *State) RetrieveMempool() []database.SignedTx {
	return s.mempool.PickBest(-1)
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveCheckpoints returns a copy of the security checkpoint chain.
func (s *State) RetrieveCheckpoints() []security.Checkpoint {
	return s.monitor.Checkpoints()
}

// RetrieveIncentive returns the accumulated proposer incentive for the
// account on the canonical branch.
func (s *State) RetrieveIncentive(account database.AccountID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incentives[account]
}

// BestChain returns an iterator over a snapshot of the canonical chain.
func (s *State) BestChain() *chain.Iterator {
	return s.chain.BestChain()
}
