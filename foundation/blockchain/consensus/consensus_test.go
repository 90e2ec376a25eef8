package consensus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/consensus"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const testKeyHex = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// timedBranch builds a branch of empty block headers spaced by the given
// interval. Retargeting reads only the timestamps.
func timedBranch(count int, interval uint64) []database.Block {
	branch := make([]database.Block, count)
	for i := range branch {
		branch[i].Header.Height = uint64(i)
		branch[i].Header.TimeStamp = uint64(i) * interval
	}
	return branch
}

func Test_EngineConfig(t *testing.T) {
	t.Log("Given the need to reject an unusable consensus policy.")
	{
		_, err := consensus.New(consensus.Config{Genesis: genesis.Genesis{Difficulty: 0, RetargetWindow: 4}})
		if err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject a zero difficulty.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject a zero difficulty.", success)

		_, err = consensus.New(consensus.Config{Genesis: genesis.Genesis{Difficulty: 4, RetargetWindow: 1}})
		if err == nil {
			t.Fatalf("\t%s\tTest 1:\tShould reject a retarget window under 2 blocks.", failed)
		}
		t.Logf("\t%s\tTest 1:\tShould reject a retarget window under 2 blocks.", success)
	}
}

func Test_Retargeting(t *testing.T) {
	gen := genesis.Genesis{
		Difficulty:        12,
		TargetInterval:    15,
		RetargetWindow:    4,
		RetargetClampBits: 2,
	}

	engine, err := consensus.New(consensus.Config{Genesis: gen})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the engine: %v", failed, err)
	}

	tests := []struct {
		name     string
		interval uint64
		want     uint
	}{
		{"fast blocks raise the target, clamped", 3, 14},
		{"on-pace blocks hold the target", 15, 12},
		{"slow blocks lower the target, clamped", 60, 10},
	}

	t.Log("Given the need to retarget difficulty from observed block pacing.")
	{
		for testID, tt := range tests {
			branch := timedBranch(4, tt.interval)

			got := engine.TargetForHeight(4, branch)
			if got != tt.want {
				t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, got)
				t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tt.want)
				t.Fatalf("\t%s\tTest %d:\t%s.", failed, testID, tt.name)
			}
			t.Logf("\t%s\tTest %d:\t%s.", success, testID, tt.name)
		}

		t.Logf("\tTest 3:\tWhen the height is inside the first window.")
		{
			branch := timedBranch(2, 3)
			if got := engine.TargetForHeight(2, branch); got != gen.Difficulty {
				t.Fatalf("\t%s\tTest 3:\tShould hold the genesis difficulty before the first boundary: %d", failed, got)
			}
			t.Logf("\t%s\tTest 3:\tShould hold the genesis difficulty before the first boundary.", success)
		}

		t.Logf("\tTest 4:\tWhen lowering would cross the floor.")
		{
			floorGen := genesis.Genesis{
				Difficulty:        2,
				TargetInterval:    15,
				RetargetWindow:    4,
				RetargetClampBits: 8,
			}
			floorEngine, err := consensus.New(consensus.Config{Genesis: floorGen})
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to construct the engine: %v", failed, err)
			}

			branch := timedBranch(4, 600)
			if got := floorEngine.TargetForHeight(4, branch); got != 1 {
				t.Fatalf("\t%s\tTest 4:\tShould never lower the target below 1 bit: %d", failed, got)
			}
			t.Logf("\t%s\tTest 4:\tShould never lower the target below 1 bit.", success)
		}

		t.Logf("\tTest 5:\tWhen the canonical branch is re-recorded after a reorganization.")
		{
			branch := timedBranch(4, 3)
			engine.RecordBlock(branch)
			if got := engine.CurrentTarget(); got != 14 {
				t.Fatalf("\t%s\tTest 5:\tShould raise the active target from the new branch: %d", failed, got)
			}

			engine.RecordBlock(timedBranch(4, 15))
			if got := engine.CurrentTarget(); got != 12 {
				t.Fatalf("\t%s\tTest 5:\tShould recompute the active target from scratch: %d", failed, got)
			}
			t.Logf("\t%s\tTest 5:\tShould recompute the active target from the canonical branch.", success)
		}
	}
}

func Test_ObservedInterval(t *testing.T) {
	gen := genesis.Genesis{
		Difficulty:        12,
		TargetInterval:    15,
		RetargetWindow:    4,
		RetargetClampBits: 2,
	}

	engine, err := consensus.New(consensus.Config{Genesis: gen})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the engine: %v", failed, err)
	}

	t.Log("Given the need to report the average interval between accepted blocks.")
	{
		if got := engine.ObservedInterval(); got != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould report zero before any blocks are recorded: %d", failed, got)
		}
		t.Logf("\t%s\tTest 0:\tShould report zero before any blocks are recorded.", success)

		engine.RecordBlock(timedBranch(4, 3))
		if got := engine.ObservedInterval(); got != 3 {
			t.Fatalf("\t%s\tTest 1:\tShould average the recorded timestamps: %d", failed, got)
		}
		t.Logf("\t%s\tTest 1:\tShould average the recorded timestamps.", success)

		// A branch longer than the retarget window only contributes its
		// most recent timestamps.
		engine.RecordBlock(timedBranch(8, 15))
		if got := engine.ObservedInterval(); got != 15 {
			t.Fatalf("\t%s\tTest 2:\tShould measure over the retarget window only: %d", failed, got)
		}
		t.Logf("\t%s\tTest 2:\tShould measure over the retarget window only.", success)
	}
}

func Test_GenerateAndVerifyProof(t *testing.T) {
	gen := genesis.Genesis{
		Date:           time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:     4,
		TargetInterval: 15,
		RetargetWindow: 8,
		MaxStakeWeight: 1000,
	}

	engine, err := consensus.New(consensus.Config{Genesis: gen})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the engine: %v", failed, err)
	}

	genesisBlock := database.Genesis(gen)
	branch := []database.Block{genesisBlock}

	pk, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the test key: %v", failed, err)
	}

	tx, err := database.NewTx(
		database.PublicKeyToAccountID(pk.PublicKey),
		1,
		database.Command{Descriptor: "exchange.data"},
		nil,
		[]database.TxOutput{{Kind: "data", Value: 1_000_000}},
	)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}
	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	newBlock := func() database.Block {
		block, err := database.Assemble(database.AssembleArgs{
			Height:        1,
			PrevBlockHash: genesisBlock.Hash(),
			ProposerID:    signedTx.SenderID,
			Trans:         []database.SignedTx{signedTx},
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to assemble a block: %v", failed, err)
		}
		return block
	}

	t.Log("Given the need to seal and verify Proof-of-Compute proofs.")
	{
		t.Logf("\tTest 0:\tWhen mining a block at a low target.")
		{
			block := newBlock()

			if err := engine.GenerateProof(context.Background(), &block, consensus.ProofArgs{}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to solve the puzzle: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to solve the puzzle.", success)

			if err := engine.VerifyProof(block, branch); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to verify the sealed proof: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to verify the sealed proof.", success)
		}

		t.Logf("\tTest 1:\tWhen declared stake lowers the effective target.")
		{
			block := newBlock()

			args := consensus.ProofArgs{StakeWeight: gen.MaxStakeWeight, StakeAttestation: "attest-1"}
			if err := engine.GenerateProof(context.Background(), &block, args); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to solve the discounted puzzle: %v", failed, err)
			}
			if err := engine.VerifyProof(block, branch); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to verify a staked proof: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to verify a staked proof.", success)
		}

		t.Logf("\tTest 2:\tWhen the declared stake exceeds the bound.")
		{
			block := newBlock()

			err := engine.GenerateProof(context.Background(), &block, consensus.ProofArgs{StakeWeight: gen.MaxStakeWeight + 1})
			if !errors.Is(err, database.ErrProofInvalid) {
				t.Fatalf("\t%s\tTest 2:\tShould refuse to mine with an out-of-bound stake: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould refuse to mine with an out-of-bound stake.", success)
		}

		t.Logf("\tTest 3:\tWhen the search is cancelled.")
		{
			block := newBlock()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			hardGen := gen
			hardGen.Difficulty = 40
			hardEngine, err := consensus.New(consensus.Config{Genesis: hardGen})
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to construct the engine: %v", failed, err)
			}

			if err := hardEngine.GenerateProof(ctx, &block, consensus.ProofArgs{}); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 3:\tShould stop the search on cancellation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould stop the search on cancellation.", success)
		}

		t.Logf("\tTest 4:\tWhen the sealed proof is tampered with.")
		{
			block := newBlock()
			if err := engine.GenerateProof(context.Background(), &block, consensus.ProofArgs{}); err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to solve the puzzle: %v", failed, err)
			}

			tampered := block
			tampered.Header.Proof.Target = gen.Difficulty + 1
			if err := engine.VerifyProof(tampered, branch); !errors.Is(err, database.ErrProofInvalid) {
				t.Fatalf("\t%s\tTest 4:\tShould reject a tampered target: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould reject a tampered target.", success)

			tampered = block
			tampered.Header.Proof.StakeWeight = gen.MaxStakeWeight + 1
			if err := engine.VerifyProof(tampered, branch); !errors.Is(err, database.ErrProofInvalid) {
				t.Fatalf("\t%s\tTest 4:\tShould reject an out-of-bound stake: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould reject an out-of-bound stake.", success)

			tampered = block
			tampered.Header.Proof.StakeWeight = 1
			tampered.Header.Proof.StakeAttestation = ""
			if err := engine.VerifyProof(tampered, branch); !errors.Is(err, database.ErrProofInvalid) {
				t.Fatalf("\t%s\tTest 4:\tShould reject stake without an attestation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould reject stake without an attestation.", success)
		}

		t.Logf("\tTest 5:\tWhen computing weight and incentive.")
		{
			block := newBlock()
			block.Header.Proof.Target = 10
			if got := engine.ProofWeight(block); got != 1<<10 {
				t.Fatalf("\t%s\tTest 5:\tShould weigh a block exponentially in its target: %d", failed, got)
			}

			block.Header.Proof.Target = 200
			if got := engine.ProofWeight(block); got != 1<<62 {
				t.Fatalf("\t%s\tTest 5:\tShould cap the weight exponent: %d", failed, got)
			}
			t.Logf("\t%s\tTest 5:\tShould weigh a block exponentially in its target, capped.", success)

			incGen := gen
			incGen.FeeMicros = 100
			incEngine, err := consensus.New(consensus.Config{Genesis: incGen})
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to construct the engine: %v", failed, err)
			}

			if got := incEngine.ComputeIncentive(newBlock()); got != 100 {
				t.Fatalf("\t%s\tTest 5:\tShould credit the fee fraction of the output value: %d", failed, got)
			}
			t.Logf("\t%s\tTest 5:\tShould credit the fee fraction of the output value.", success)
		}
	}
}
