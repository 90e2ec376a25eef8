// Package chain maintains the forest of known blocks, selects the canonical
// head by cumulative proof weight and buffers orphan blocks until their
// parent arrives.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// ErrBlockKnown is returned when a block already present in the forest is
// submitted again.
var ErrBlockKnown = errors.New("block already known")

// Weigher computes the proof weight a single block contributes to its
// branch. The consensus engine provides the production implementation.
type Weigher func(block database.Block) uint64

// Validator runs the full admission pipeline (structure, proof, security)
// for a block whose parent is known. The branch holds every block from
// genesis to the parent, in order.
type Validator func(block database.Block, parent database.Block, branch []database.Block) error

// =============================================================================

// Config represents the configuration required to build a Store.
type Config struct {
	Genesis       database.Block
	Weigher       Weigher
	Validate      Validator
	OrphanRetries int
	OrphanHorizon time.Duration
	EvHandler     func(v string, args ...any)
}

// AddResult reports what a call to Add did to the forest.
type AddResult struct {
	HeadChanged   bool
	Reorganized   bool
	ReturnedTrans []database.SignedTx // Transactions present only on the abandoned branch.
	Admitted      []string            // Hashes linked into the forest, orphan retries included.
	Orphaned      bool                // The block was parked waiting for its parent.
}

// orphan is a block whose parent is not yet known locally.
type orphan struct {
	block   database.Block
	arrived time.Time
	retries int
}

// Store is an arena of blocks indexed by hash with explicit cumulative
// weight bookkeeping. All mutation happens through Add.
type Store struct {
	mu sync.RWMutex

	blocks  map[string]database.Block
	weights map[string]uint64
	orphans map[string]orphan

	genesisHash string
	headHash    string

	weigher       Weigher
	validate      Validator
	orphanRetries int
	orphanHorizon time.Duration
	evHandler     func(v string, args ...any)
}

// New constructs a Store seeded with the genesis block.
func New(cfg Config) (*Store, error) {
	if cfg.Weigher == nil {
		return nil, errors.New("weigher is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	validate := cfg.Validate
	if validate == nil {
		validate = func(database.Block, database.Block, []database.Block) error { return nil }
	}

	genesisHash := cfg.Genesis.Hash()

	s := Store{
		blocks:        map[string]database.Block{genesisHash: cfg.Genesis},
		weights:       map[string]uint64{genesisHash: cfg.Weigher(cfg.Genesis)},
		orphans:       make(map[string]orphan),
		genesisHash:   genesisHash,
		headHash:      genesisHash,
		weigher:       cfg.Weigher,
		validate:      validate,
		orphanRetries: cfg.OrphanRetries,
		orphanHorizon: cfg.OrphanHorizon,
		evHandler:     ev,
	}

	return &s, nil
}

// =============================================================================

// Add runs the admission pipeline for the block and, when that passes, links
// it into the forest, recomputes cumulative weight and re-evaluates the head
// pointer. Blocks with an unknown parent are parked as orphans and retried
// when the parent arrives. Either the full head/weight update happens or
// none of it does.
func (s *Store) Add(block database.Block) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepOrphans(time.Now())

	hash := block.Hash()
	if _, exists := s.blocks[hash]; exists {
		return AddResult{}, ErrBlockKnown
	}
	if _, exists := s.orphans[hash]; exists {
		return AddResult{}, ErrBlockKnown
	}

	parent, exists := s.blocks[block.Header.PrevBlockHash]
	if !exists {
		s.evHandler("chain: Add: blk[%s]: parent[%s] unknown, parked as orphan", hash, block.Header.PrevBlockHash)
		s.orphans[hash] = orphan{block: block, arrived: time.Now()}
		return AddResult{Orphaned: true}, nil
	}

	if err := s.link(block, parent); err != nil {
		return AddResult{}, err
	}

	admitted := []string{hash}
	admitted = append(admitted, s.retryOrphans(hash)...)

	return s.reevaluateHead(admitted), nil
}

// Head returns the block the head pointer denotes.
func (s *Store) Head() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blocks[s.headHash]
}

// HeadWeight returns the cumulative weight of the canonical branch.
func (s *Store) HeadWeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.weights[s.headHash]
}

// Genesis returns the genesis block.
func (s *Store) Genesis() database.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.blocks[s.genesisHash]
}

// GetBlock returns the block with the specified hash if it is linked into
// the forest.
func (s *Store) GetBlock(hash string) (database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, exists := s.blocks[hash]
	return block, exists
}

// Knows reports whether the block is linked or parked as an orphan.
func (s *Store) Knows(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.blocks[hash]; exists {
		return true
	}
	_, exists := s.orphans[hash]
	return exists
}

// OrphanCount returns the number of parked orphan blocks.
func (s *Store) OrphanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.orphans)
}

// BranchTo returns every block from genesis to the specified hash, in
// order. The bool reports whether the hash is linked into the forest.
func (s *Store) BranchTo(hash string) ([]database.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.branchToLocked(hash)
}

// BestChain returns an iterator that walks the canonical chain from genesis
// to head. The iterator holds a consistent snapshot of the branch taken at
// call time and can be restarted.
func (s *Store) BestChain() *Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, _ := s.branchToLocked(s.headHash)
	return &Iterator{blocks: branch}
}

// =============================================================================

// link validates the block against its parent and inserts it into the arena
// with its cumulative weight.
func (s *Store) link(block database.Block, parent database.Block) error {
	branch, ok := s.branchToLocked(parent.Hash())
	if !ok {
		return fmt.Errorf("parent branch is broken at %s", parent.Hash())
	}

	if err := s.validate(block, parent, branch); err != nil {
		return err
	}

	hash := block.Hash()
	parentWeight := s.weights[parent.Hash()]
	own := s.weigher(block)
	if own > ^uint64(0)-parentWeight {
		return fmt.Errorf("cumulative weight overflow: parent %d, block %d", parentWeight, own)
	}

	s.blocks[hash] = block
	s.weights[hash] = parentWeight + own

	s.evHandler("chain: link: blk[%d]: hash[%s]: weight[%d]", block.Header.Height, hash, s.weights[hash])

	return nil
}

// retryOrphans attempts to link every orphan whose parent just arrived.
// Orphans that keep failing validation are discarded after the bounded
// retry count.
func (s *Store) retryOrphans(parentHash string) []string {
	var admitted []string

	for hash, orp := range s.orphans {
		if orp.block.Header.PrevBlockHash != parentHash {
			continue
		}

		if err := s.link(orp.block, s.blocks[parentHash]); err != nil {
			orp.retries++
			if orp.retries > s.orphanRetries {
				s.evHandler("chain: retryOrphans: blk[%s]: discarded: %s: %s", hash, database.ErrStaleOrphan, err)
				delete(s.orphans, hash)
				continue
			}
			s.orphans[hash] = orp
			continue
		}

		delete(s.orphans, hash)
		admitted = append(admitted, hash)

		// The admitted orphan may itself be the parent another orphan
		// is waiting on.
		admitted = append(admitted, s.retryOrphans(hash)...)
	}

	return admitted
}

// sweepOrphans discards orphans older than the configured horizon.
func (s *Store) sweepOrphans(now time.Time) {
	if s.orphanHorizon <= 0 {
		return
	}

	for hash, orp := range s.orphans {
		if now.Sub(orp.arrived) > s.orphanHorizon {
			s.evHandler("chain: sweepOrphans: blk[%s]: %s", hash, database.ErrStaleOrphan)
			delete(s.orphans, hash)
		}
	}
}

// reevaluateHead checks every newly admitted block against the current head
// and performs the reorganization bookkeeping when the head moves to a
// different branch.
func (s *Store) reevaluateHead(admitted []string) AddResult {
	result := AddResult{Admitted: admitted}

	oldHead := s.headHash
	for _, hash := range admitted {
		if s.better(hash, s.headHash) {
			s.headHash = hash
		}
	}

	if s.headHash == oldHead {
		return result
	}

	result.HeadChanged = true
	s.evHandler("chain: reevaluateHead: head moved: old[%s] new[%s] weight[%d]", oldHead, s.headHash, s.weights[s.headHash])

	// A simple extension of the old head is not a reorganization.
	if s.descends(s.headHash, oldHead) {
		return result
	}

	result.Reorganized = true
	result.ReturnedTrans = s.abandonedTrans(oldHead, s.headHash)

	return result
}

// better reports whether branch a outweighs branch b using the tie-break
// rule: cumulative weight, then earliest timestamp, then smallest hash.
func (s *Store) better(a, b string) bool {
	wa, wb := s.weights[a], s.weights[b]
	if wa != wb {
		return wa > wb
	}

	ba, bb := s.blocks[a], s.blocks[b]
	if ba.Header.TimeStamp != bb.Header.TimeStamp {
		return ba.Header.TimeStamp < bb.Header.TimeStamp
	}

	return a < b
}

// descends reports whether block a has block b on its parent path.
func (s *Store) descends(a, b string) bool {
	for hash := a; ; {
		if hash == b {
			return true
		}
		block, exists := s.blocks[hash]
		if !exists || hash == s.genesisHash {
			return false
		}
		hash = block.Header.PrevBlockHash
	}
}

// abandonedTrans returns the transactions that appear on the abandoned
// branch after the fork point but not on the new canonical branch. They
// must be returned to the pending pool.
func (s *Store) abandonedTrans(oldHead, newHead string) []database.SignedTx {
	oldBranch, _ := s.branchToLocked(oldHead)
	newBranch, _ := s.branchToLocked(newHead)

	// Find the fork point: the last common block of both branches.
	fork := 0
	for fork < len(oldBranch) && fork < len(newBranch) {
		if oldBranch[fork].Hash() != newBranch[fork].Hash() {
			break
		}
		fork++
	}

	kept := make(map[string]struct{})
	for _, block := range newBranch[fork:] {
		for _, tx := range block.Transactions() {
			kept[tx.TxID()] = struct{}{}
		}
	}

	var returned []database.SignedTx
	for _, block := range oldBranch[fork:] {
		for _, tx := range block.Transactions() {
			if _, exists := kept[tx.TxID()]; !exists {
				returned = append(returned, tx)
			}
		}
	}

	return returned
}

// branchToLocked walks parent links from the hash back to genesis and
// returns the blocks in chain order.
func (s *Store) branchToLocked(hash string) ([]database.Block, bool) {
	var reversed []database.Block

	for cur := hash; ; {
		block, exists := s.blocks[cur]
		if !exists {
			return nil, false
		}
		reversed = append(reversed, block)
		if cur == s.genesisHash {
			break
		}
		cur = block.Header.PrevBlockHash
	}

	branch := make([]database.Block, len(reversed))
	for i, block := range reversed {
		branch[len(reversed)-1-i] = block
	}

	return branch, true
}

// =============================================================================

// Iterator walks a snapshot of the canonical chain from genesis to head.
type Iterator struct {
	blocks []database.Block
	index  int
}

// Next retrieves the next block in the chain.
func (it *Iterator) Next() (database.Block, error) {
	if it.Done() {
		return database.Block{}, errors.New("no more blocks")
	}

	block := it.blocks[it.index]
	it.index++
	return block, nil
}

// Done returns the end of chain value.
func (it *Iterator) Done() bool {
	return it.index >= len(it.blocks)
}

// Reset restarts the iterator at genesis.
func (it *Iterator) Reset() {
	it.index = 0
}
