// Package state is the core API for the ledger and implements all the
// business rules and processing.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/chain"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/consensus"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/mempool"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/peer"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/security"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.SignedTx)
}

// =============================================================================

// Config represents the configuration required to start
// the ledger node.
type Config struct {
	ProposerID       database.AccountID
	StakeWeight      uint
	StakeAttestation string
	Host             string
	Genesis          genesis.Genesis
	SelectStrategy   string
	KnownPeers       *peer.PeerSet
	Sampler          consensus.Sampler
	EvHandler        EventHandler
}

// State manages the ledger: the block forest, the pending pool, the
// consensus engine and the security monitor, behind one admission mutex.
type State struct {
	proposerID       database.AccountID
	stakeWeight      uint
	stakeAttestation string
	host             string
	evHandler        EventHandler

	mu             sync.Mutex
	recordedHeight uint64
	incentives     map[database.AccountID]uint64

	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	mempool    *mempool.Mempool
	chain      *chain.Store
	engine     *consensus.Engine
	monitor    *security.Monitor

	Worker Worker
}

// New constructs a new ledger state for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	engine, err := consensus.New(consensus.Config{
		Genesis:   cfg.Genesis,
		Sampler:   cfg.Sampler,
		EvHandler: ev,
	})
	if err != nil {
		return nil, err
	}

	monitor := security.NewMonitor(cfg.Genesis, ev)

	// Construct a mempool with the specified sort strategy.
	mempool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	// Every node derives the identical genesis block from the genesis file,
	// so the forest roots of all nodes agree.
	genesisBlock := database.Genesis(cfg.Genesis)

	st := State{
		proposerID:       cfg.ProposerID,
		stakeWeight:      cfg.StakeWeight,
		stakeAttestation: cfg.StakeAttestation,
		host:             cfg.Host,
		evHandler:        ev,
		incentives:       make(map[database.AccountID]uint64),
		genesis:          cfg.Genesis,
		knownPeers:       cfg.KnownPeers,
		mempool:          mempool,
		engine:           engine,
		monitor:          monitor,
	}

	forest, err := chain.New(chain.Config{
		Genesis:       genesisBlock,
		Weigher:       engine.ProofWeight,
		Validate:      st.validateBlock,
		OrphanRetries: cfg.Genesis.OrphanRetries,
		OrphanHorizon: time.Duration(cfg.Genesis.OrphanHorizon) * time.Second,
		EvHandler:     ev,
	})
	if err != nil {
		return nil, err
	}
	st.chain = forest

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &st, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all ledger writing activity.
	s.Worker.Shutdown()

	return nil
}

// =============================================================================

// validateBlock is the admission pipeline the forest runs before linking a
// block: structural checks, the empty block policy, the consensus proof
// against the block's own branch, the anomaly detector and per-transaction
// validation including replay against the branch being extended.
func (s *State) validateBlock(block database.Block, parent database.Block, branch []database.Block) error {
	if err := block.ValidateStructure(parent, s.evHandler); err != nil {
		return err
	}

	if len(block.Transactions()) == 0 && block.Header.Height > 0 && !s.genesis.AllowEmptyBlocks {
		return database.ErrEmptyBlock
	}

	if err := s.engine.VerifyProof(block, branch); err != nil {
		return err
	}

	if err := s.monitor.CheckAnomaly(block); err != nil {
		return err
	}

	// A replay identity confirmed anywhere on the branch this block extends
	// must not be confirmed again. The forest hands us the full branch, so
	// the check holds for side branches as well as the canonical one.
	identities := make(map[string]struct{})
	for _, blk := range branch {
		for _, tx := range blk.Transactions() {
			identities[tx.UniqueKey()] = struct{}{}
		}
	}

	for _, tx := range block.Transactions() {
		if err := tx.Validate(); err != nil {
			return err
		}
		if _, exists := identities[tx.UniqueKey()]; exists {
			return fmt.Errorf("%w: identity %s already confirmed on this branch", database.ErrDuplicateTransaction, tx.UniqueKey())
		}
		identities[tx.UniqueKey()] = struct{}{}
	}

	return nil
}
