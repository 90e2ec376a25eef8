package database

import (
	"fmt"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/merkle"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/signature"
)

// Proof is the consensus payload sealed onto a block header by the
// proof-of-compute engine.
type Proof struct {
	Target           uint   `json:"target"`                      // Leading zero bits the block hash must satisfy.
	SolutionNonce    uint64 `json:"solution_nonce"`              // Value identified to solve the hash puzzle.
	StakeWeight      uint   `json:"stake_weight"`                // Declared stake, bounded, lowers the effective target.
	StakeAttestation string `json:"stake_attestation,omitempty"` // Opaque attestation token, format checked only.
	EntropySample    string `json:"entropy_sample,omitempty"`    // Opaque compute-capability sample from the provider.
}

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Height        uint64    `json:"height"`          // Block height in the chain, genesis = 0.
	PrevBlockHash string    `json:"prev_block_hash"` // Hash of the parent block header, zero sentinel for genesis.
	MerkleRoot    string    `json:"merkle_root"`     // Merkle tree root hash for the transactions in this block.
	TimeStamp     uint64    `json:"timestamp"`       // Time the block was proposed.
	ProposerID    AccountID `json:"proposer"`        // The account receiving the incentive.
	Proof         Proof     `json:"proof"`           // The consensus proof payload.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[SignedTx]
}

// AssembleArgs carries everything needed to build a candidate block. The
// proof is attached later by the consensus engine.
type AssembleArgs struct {
	Height          uint64
	PrevBlockHash   string
	ParentTimeStamp uint64
	ProposerID      AccountID
	Trans           []SignedTx
	AllowEmpty      bool
}

// Assemble builds the header fields and the computed merkle root for a
// candidate block. An empty transaction list is permitted only for genesis
// unless the chain policy allows empty blocks. The timestamp must land
// strictly after the parent's, so fast proposals advance it by one second.
func Assemble(args AssembleArgs) (Block, error) {
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp <= args.ParentTimeStamp {
		timeStamp = args.ParentTimeStamp + 1
	}

	if len(args.Trans) == 0 {
		if args.Height != 0 && !args.AllowEmpty {
			return Block{}, ErrEmptyBlock
		}

		nb := Block{
			Header: BlockHeader{
				Height:        args.Height,
				PrevBlockHash: args.PrevBlockHash,
				MerkleRoot:    signature.ZeroHash,
				TimeStamp:     timeStamp,
				ProposerID:    args.ProposerID,
			},
		}
		return nb, nil
	}

	tree, err := merkle.NewTree(args.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: BlockHeader{
			Height:        args.Height,
			PrevBlockHash: args.PrevBlockHash,
			MerkleRoot:    tree.RootHex(),
			TimeStamp:     timeStamp,
			ProposerID:    args.ProposerID,
		},
		Trans: tree,
	}

	return nb, nil
}

// Genesis constructs the deterministic genesis block every node agrees on.
func Genesis(gen genesis.Genesis) Block {
	return Block{
		Header: BlockHeader{
			Height:        0,
			PrevBlockHash: signature.ZeroHash,
			MerkleRoot:    signature.ZeroHash,
			TimeStamp:     uint64(gen.Date.UTC().Unix()),
			Proof: Proof{
				Target: gen.Difficulty,
			},
		},
	}
}

// Hash returns the unique hash for the block.
func (b Block) Hash() string {

	// CORE NOTE: Hashing the block header and not the whole block so the
	// chain can be cryptographically checked by only needing block headers
	// and not full blocks with the transaction data. The merkle root inside
	// the header commits to the transactions.

	return signature.Hash(b.Header)
}

// Transactions returns the ordered transaction list. A genesis or empty
// block returns nil.
func (b Block) Transactions() []SignedTx {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// ValidateStructure checks the prev_hash linkage against the specified
// parent and recomputes the merkle root from the transaction list.
func (b Block) ValidateStructure(parentBlock Block, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateStructure: blk[%d]: check: height is the next height", b.Header.Height)

	nextHeight := parentBlock.Header.Height + 1
	if b.Header.Height != nextHeight {
		return fmt.Errorf("%w: this block is not the next height, got %d, exp %d", ErrLinkage, b.Header.Height, nextHeight)
	}

	evHandler("database: ValidateStructure: blk[%d]: check: parent hash matches parent block", b.Header.Height)

	if b.Header.PrevBlockHash != parentBlock.Hash() {
		return fmt.Errorf("%w: got %s, exp %s", ErrLinkage, b.Header.PrevBlockHash, parentBlock.Hash())
	}

	if parentBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateStructure: blk[%d]: check: timestamp is greater than parent timestamp", b.Header.Height)

		parentTime := time.Unix(int64(parentBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if !blockTime.After(parentTime) {
			return fmt.Errorf("%w: block timestamp is before parent, parent %s, block %s", ErrLinkage, parentTime, blockTime)
		}
	}

	evHandler("database: ValidateStructure: blk[%d]: check: merkle root matches transactions", b.Header.Height)

	if b.Trans == nil {
		if b.Header.MerkleRoot != signature.ZeroHash {
			return fmt.Errorf("%w: empty block carries root %s", ErrMerkleMismatch, b.Header.MerkleRoot)
		}
		return nil
	}

	if err := b.Trans.Verify(); err != nil {
		return fmt.Errorf("%w: %s", ErrMerkleMismatch, err)
	}

	if b.Header.MerkleRoot != b.Trans.RootHex() {
		return fmt.Errorf("%w: got %s, exp %s", ErrMerkleMismatch, b.Trans.RootHex(), b.Header.MerkleRoot)
	}

	return nil
}

// =============================================================================

// BlockData represents what is serialized over the wire and to callers that
// can't consume a merkle tree.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Transactions(),
	}
}

// ToBlock converts a BlockData back into a Block.
func ToBlock(blockData BlockData) (Block, error) {
	if len(blockData.Trans) == 0 {
		return Block{Header: blockData.Header}, nil
	}

	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return nb, nil
}
