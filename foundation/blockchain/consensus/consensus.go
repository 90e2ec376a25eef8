// Package consensus implements the Proof-of-Compute engine: a hash puzzle
// threshold combined with a stake-weighted target adjustment, difficulty
// retargeting over a sliding window, and the proposer incentive.
package consensus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
)

// Sampler represents the capability provider supplying an opaque
// compute-capability sample attached to every proof. Real hardware sampling
// is substituted in production without touching the engine.
type Sampler interface {
	Sample() string
}

// =============================================================================

// Config represents the configuration required to build an Engine.
type Config struct {
	Genesis   genesis.Genesis
	Sampler   Sampler
	EvHandler func(v string, args ...any)
}

// Engine holds the consensus state: the active difficulty target and the
// running history of recent block timestamps. It reads chain state but
// never mutates it.
type Engine struct {
	genesis   genesis.Genesis
	sampler   Sampler
	evHandler func(v string, args ...any)

	mu     sync.Mutex
	bits   uint     // Active difficulty target in leading zero bits.
	window []uint64 // Timestamps of the most recent accepted blocks, bounded by the retarget window.
}

// New constructs a Proof-of-Compute engine from the genesis policy.
func New(cfg Config) (*Engine, error) {
	if cfg.Genesis.Difficulty == 0 {
		return nil, fmt.Errorf("genesis difficulty must be at least 1 bit")
	}
	if cfg.Genesis.RetargetWindow < 2 {
		return nil, fmt.Errorf("retarget window must cover at least 2 blocks")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	sampler := cfg.Sampler
	if sampler == nil {
		sampler = MockSampler{}
	}

	e := Engine{
		genesis:   cfg.Genesis,
		sampler:   sampler,
		evHandler: ev,
		bits:      cfg.Genesis.Difficulty,
	}

	return &e, nil
}

// CurrentTarget returns the active difficulty target in leading zero bits.
func (e *Engine) CurrentTarget() uint {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.bits
}

// ObservedInterval returns the average seconds between the most recent
// accepted blocks, measured over the retarget window. Zero until the window
// holds at least two timestamps.
func (e *Engine) ObservedInterval() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.window) < 2 {
		return 0
	}

	first := e.window[0]
	last := e.window[len(e.window)-1]
	return (last - first) / uint64(len(e.window)-1)
}

// RecordBlock updates the consensus state after a block is accepted. The
// branch is the canonical chain from genesis to the new head, so the state
// stays correct across reorganizations.
func (e *Engine) RecordBlock(branch []database.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bits = e.targetForHeight(uint64(len(branch)), branch)

	window := int(e.genesis.RetargetWindow)
	start := 0
	if len(branch) > window {
		start = len(branch) - window
	}
	e.window = e.window[:0]
	for _, block := range branch[start:] {
		e.window = append(e.window, block.Header.TimeStamp)
	}
}

// TargetForHeight recomputes the difficulty target that was active at the
// specified height on the given branch (genesis through the parent block).
// The computation is deterministic so verification is independent of the
// order blocks were received in.
func (e *Engine) TargetForHeight(height uint64, branch []database.Block) uint {
	return e.targetForHeight(height, branch)
}

// =============================================================================

// ProofArgs carries the proposer-declared parts of a proof.
type ProofArgs struct {
	StakeWeight      uint
	StakeAttestation string
}

// GenerateProof iterates candidate solution nonces until the block hash
// satisfies the stake-adjusted target, then seals the proof onto the header.
// The search is CPU bound and long-running: it polls the context so a
// competing block arriving for the same height can abort it promptly.
func (e *Engine) GenerateProof(ctx context.Context, block *database.Block, args ProofArgs) error {
	if args.StakeWeight > e.genesis.MaxStakeWeight {
		return fmt.Errorf("%w: stake weight %d exceeds bound %d", database.ErrProofInvalid, args.StakeWeight, e.genesis.MaxStakeWeight)
	}

	bits := e.CurrentTarget()

	block.Header.Proof = database.Proof{
		Target:           bits,
		StakeWeight:      args.StakeWeight,
		StakeAttestation: args.StakeAttestation,
		EntropySample:    e.sampler.Sample(),
	}

	effective := effectiveBits(bits, args.StakeWeight, e.genesis.MaxStakeWeight)

	e.evHandler("consensus: GenerateProof: MINING: started: blk[%d]: target[%d] effective[%d]", block.Header.Height, bits, effective)
	defer e.evHandler("consensus: GenerateProof: MINING: completed: blk[%d]", block.Header.Height)

	// Choose a random starting point for the nonce. After this, the nonce
	// is incremented by 1 until a solution is found or the search is
	// cancelled.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	block.Header.Proof.SolutionNonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			e.evHandler("consensus: GenerateProof: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			e.evHandler("consensus: GenerateProof: MINING: CANCELLED")
			return ctx.Err()
		}

		if !isHashSolved(effective, block.Hash()) {
			block.Header.Proof.SolutionNonce++
			continue
		}

		e.evHandler("consensus: GenerateProof: MINING: SOLVED: blk[%s]: attempts[%d]", block.Hash(), attempts)
		return nil
	}
}

// VerifyProof recomputes the block hash and confirms it satisfies the
// target that was active at the block's height on its branch. The stake
// weight is an untrusted-but-bounded input: it is validated for range only,
// and the attestation token for presence, never re-derived.
func (e *Engine) VerifyProof(block database.Block, branch []database.Block) error {
	expected := e.targetForHeight(block.Header.Height, branch)
	if block.Header.Proof.Target != expected {
		return fmt.Errorf("%w: recorded target %d, active target %d", database.ErrProofInvalid, block.Header.Proof.Target, expected)
	}

	if block.Header.Proof.StakeWeight > e.genesis.MaxStakeWeight {
		return fmt.Errorf("%w: stake weight %d exceeds bound %d", database.ErrProofInvalid, block.Header.Proof.StakeWeight, e.genesis.MaxStakeWeight)
	}

	if block.Header.Proof.StakeWeight > 0 && block.Header.Proof.StakeAttestation == "" {
		return fmt.Errorf("%w: declared stake carries no attestation", database.ErrProofInvalid)
	}

	effective := effectiveBits(expected, block.Header.Proof.StakeWeight, e.genesis.MaxStakeWeight)
	if !isHashSolved(effective, block.Hash()) {
		return fmt.Errorf("%w: hash %s does not satisfy %d bits", database.ErrProofInvalid, block.Hash(), effective)
	}

	return nil
}

// ProofWeight returns the weight a block contributes to its branch's
// cumulative difficulty. Each extra target bit doubles the expected work,
// so the weight is exponential in the recorded target.
func (e *Engine) ProofWeight(block database.Block) uint64 {
	bits := block.Header.Proof.Target
	if bits > 62 {
		bits = 62
	}
	return uint64(1) << bits
}

// ComputeIncentive computes the proposer reward: the configured fee
// fraction of the aggregate declared value of the block's transaction
// outputs. The credit is ledger-internal; settlement is the wallet's
// responsibility.
func (e *Engine) ComputeIncentive(block database.Block) uint64 {
	var total uint64
	for _, tx := range block.Transactions() {
		total += tx.OutputValue()
	}

	return total * e.genesis.FeeMicros / 1_000_000
}

// =============================================================================

// targetForHeight replays the retarget schedule over the branch. The target
// changes only at multiples of the retarget window, using the ratio of the
// target interval to the observed average interval over the window, clamped
// to the configured number of bits per retarget.
func (e *Engine) targetForHeight(height uint64, branch []database.Block) uint {
	bits := e.genesis.Difficulty
	window := e.genesis.RetargetWindow

	for boundary := window; boundary <= height; boundary += window {
		if boundary > uint64(len(branch)) {
			break
		}

		first := branch[boundary-window].Header.TimeStamp
		last := branch[boundary-1].Header.TimeStamp

		observed := (last - first) / (window - 1)
		bits = retarget(bits, observed, e.genesis.TargetInterval, e.genesis.RetargetClampBits)
	}

	return bits
}

// retarget moves the difficulty by whole bits: one bit per doubling of the
// ratio between the target interval and the observed average, clamped.
func retarget(bits uint, observed uint64, target uint64, clamp uint) uint {
	if observed == 0 {
		observed = 1
	}

	switch {
	case observed < target:
		// Blocks were faster than the target: raise the difficulty.
		var steps uint
		for ratio := target / observed; ratio > 1 && steps < clamp; ratio /= 2 {
			steps++
		}
		bits += steps

	case observed > target:
		// Blocks were slower than the target: lower the difficulty.
		var steps uint
		for ratio := observed / target; ratio > 1 && steps < clamp; ratio /= 2 {
			steps++
		}
		if steps >= bits {
			steps = bits - 1
		}
		bits -= steps
	}

	if bits == 0 {
		bits = 1
	}

	return bits
}

// effectiveBits lowers the required leading zero bits proportionally to the
// declared stake weight: at the maximum stake the puzzle is half as hard.
func effectiveBits(bits uint, stakeWeight uint, maxStake uint) uint {
	if maxStake == 0 || stakeWeight == 0 {
		return bits
	}

	discount := bits * stakeWeight / (2 * maxStake)
	if discount >= bits {
		discount = bits - 1
	}

	return bits - discount
}

// isHashSolved checks the hash complies with the proof-of-compute rules:
// it must carry at least the required number of leading zero bits.
func isHashSolved(bits uint, hash string) bool {
	if len(hash) != 66 {
		return false
	}

	raw, err := hex.DecodeString(hash[2:])
	if err != nil {
		return false
	}

	var leading uint
	for _, b := range raw {
		if b == 0 {
			leading += 8
			continue
		}
		for i := 7; i >= 0; i-- {
			if b>>uint(i) != 0 {
				break
			}
			leading++
		}
		break
	}

	return leading >= bits
}

// =============================================================================

// MockSampler is the default in-process compute-capability provider. It
// returns random bytes in place of a hardware entropy measurement.
type MockSampler struct{}

// Sample returns an opaque hex-encoded sample.
func (MockSampler) Sample() string {
	sample := make([]byte, 16)
	rand.Read(sample)
	return hex.EncodeToString(sample)
}
