package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/chain"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/consensus"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/peer"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const testKeyHex = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// nopWorker satisfies the Worker contract without running any goroutines.
// Tests drive mining and admission directly.
type nopWorker struct{}

func (nopWorker) Shutdown()                          {}
func (nopWorker) SignalStartMining()                 {}
func (nopWorker) SignalCancelMining() (done func())  { return func() {} }
func (nopWorker) SignalShareTx(tx database.SignedTx) {}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:               time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:            1,
		TransPerBlock:      10,
		Difficulty:         1,
		TargetInterval:     15,
		RetargetWindow:     16,
		RetargetClampBits:  2,
		FeeMicros:          100,
		MaxStakeWeight:     1000,
		CheckpointInterval: 16,
		AnomalyMultiplier:  3,
		RiskThreshold:      0.001,
		OrphanRetries:      3,
		OrphanHorizon:      600,
	}
}

func newState(t *testing.T, proposerID database.AccountID) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		ProposerID:     proposerID,
		Host:           "localhost:9080",
		Genesis:        testGenesis(),
		SelectStrategy: "value",
		KnownPeers:     peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	st.Worker = nopWorker{}

	return st
}

func signTx(t *testing.T, nonce uint64, value uint64) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the test key: %v", failed, err)
	}

	tx, err := database.NewTx(
		database.PublicKeyToAccountID(pk.PublicKey),
		nonce,
		database.Command{Descriptor: "exchange.data", Params: map[string]string{"payload": "ref-1"}},
		nil,
		[]database.TxOutput{{Kind: "data", Value: value}},
	)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return signedTx
}

func signConfigTx(t *testing.T, nonce uint64, params map[string]string) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the test key: %v", failed, err)
	}

	tx, err := database.NewTx(
		database.PublicKeyToAccountID(pk.PublicKey),
		nonce,
		database.Command{Descriptor: "config.update", Params: params},
		nil,
		[]database.TxOutput{{Kind: "config", Value: 1}},
	)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return signedTx
}

func Test_SubmitTransaction(t *testing.T) {
	t.Log("Given the need to accept wallet transactions into the pending pool.")
	{
		st := newState(t, "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

		signedTx := signTx(t, 1, 100)

		if err := st.SubmitWalletTransaction(signedTx); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a valid transaction: %v", failed, err)
		}
		if len(st.RetrieveMempool()) != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould hold the transaction in the pool.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould accept a valid transaction.", success)

		err := st.SubmitWalletTransaction(signedTx)
		if !errors.Is(err, database.ErrDuplicateTransaction) {
			t.Fatalf("\t%s\tTest 1:\tShould reject an identity already pending: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould reject an identity already pending.", success)

		forged := signedTx
		forged.SenderID = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
		if err := st.SubmitWalletTransaction(forged); !errors.Is(err, database.ErrInvalidSignature) {
			t.Fatalf("\t%s\tTest 2:\tShould reject a forged sender: %v", failed, err)
		}
		t.Logf("\t%s\tTest 2:\tShould reject a forged sender.", success)
	}
}

func Test_MineAndConfirm(t *testing.T) {
	t.Log("Given the need to mine pending transactions into a confirmed block.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		st := newState(t, proposerID)

		signedTx := signTx(t, 1, 1_000_000)

		if err := st.SubmitWalletTransaction(signedTx); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a valid transaction: %v", failed, err)
		}

		block, err := st.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould be able to mine a block.", success)

		if head := st.RetrieveHead(); head.Hash() != block.Hash() || head.Header.Height != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould move the head to the mined block.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould move the head to the mined block.", success)

		if len(st.RetrieveMempool()) != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould drain mined transactions from the pool.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould drain mined transactions from the pool.", success)

		// fee_micros of 100 over one million units of declared value.
		if got := st.RetrieveIncentive(proposerID); got != 100 {
			t.Fatalf("\t%s\tTest 0:\tShould credit the proposer incentive: %d", failed, got)
		}
		t.Logf("\t%s\tTest 0:\tShould credit the proposer incentive.", success)

		if err := st.SubmitWalletTransaction(signedTx); !errors.Is(err, database.ErrDuplicateTransaction) {
			t.Fatalf("\t%s\tTest 1:\tShould reject a replay of a confirmed identity: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould reject a replay of a confirmed identity.", success)

		if _, err := st.MineNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tTest 2:\tShould refuse to mine with an empty pool: %v", failed, err)
		}
		t.Logf("\t%s\tTest 2:\tShould refuse to mine with an empty pool.", success)
	}
}

func Test_ProcessProposedBlock(t *testing.T) {
	t.Log("Given the need to admit blocks proposed by peers.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

		// Mine a block on one node and replay it to a second node, the way
		// the peer sync pulls blocks.
		miner := newState(t, proposerID)
		follower := newState(t, proposerID)

		signedTx := signTx(t, 1, 100)
		if err := miner.SubmitWalletTransaction(signedTx); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a valid transaction: %v", failed, err)
		}

		block, err := miner.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
		}

		if err := follower.ProcessProposedBlock(block); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould admit a peer's block: %v", failed, err)
		}
		if follower.RetrieveHead().Hash() != block.Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould move the follower's head to the block.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould admit a peer's block and move the head.", success)

		if err := follower.ProcessProposedBlock(block); !errors.Is(err, chain.ErrBlockKnown) {
			t.Fatalf("\t%s\tTest 1:\tShould reject a block it already holds: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould reject a block it already holds.", success)

		tampered := block
		tampered.Header.Proof.Target += 5
		if err := follower.ProcessProposedBlock(tampered); !errors.Is(err, database.ErrProofInvalid) {
			t.Fatalf("\t%s\tTest 2:\tShould reject a block with a broken proof: %v", failed, err)
		}
		t.Logf("\t%s\tTest 2:\tShould reject a block with a broken proof.", success)
	}
}

func Test_RejectConfirmedIdentityInPeerBlock(t *testing.T) {
	t.Log("Given the need to reject a peer block re-confirming an identity already on its branch.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

		miner := newState(t, proposerID)
		follower := newState(t, proposerID)

		signedTx := signTx(t, 1, 100)
		if err := miner.SubmitWalletTransaction(signedTx); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a valid transaction: %v", failed, err)
		}

		block, err := miner.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
		}
		if err := follower.ProcessProposedBlock(block); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould admit a peer's block: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould admit the block confirming the identity.", success)

		// Build a valid child block that carries the same signed transaction
		// the parent already confirmed.
		replayBlk, err := database.Assemble(database.AssembleArgs{
			Height:          2,
			PrevBlockHash:   block.Hash(),
			ParentTimeStamp: block.Header.TimeStamp,
			ProposerID:      proposerID,
			Trans:           []database.SignedTx{signedTx},
		})
		if err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be able to assemble a child block: %v", failed, err)
		}

		engine, err := consensus.New(consensus.Config{Genesis: testGenesis()})
		if err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be able to construct an engine: %v", failed, err)
		}
		if err := engine.GenerateProof(context.Background(), &replayBlk, consensus.ProofArgs{}); err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be able to seal a proof: %v", failed, err)
		}

		err = follower.ProcessProposedBlock(replayBlk)
		if !errors.Is(err, database.ErrDuplicateTransaction) {
			t.Fatalf("\t%s\tTest 1:\tShould reject the identity replay: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould reject the identity replay.", success)

		if head := follower.RetrieveHead(); head.Header.Height != 1 {
			t.Fatalf("\t%s\tTest 1:\tShould hold the head at the parent: %d", failed, head.Header.Height)
		}
		t.Logf("\t%s\tTest 1:\tShould hold the head at the parent.", success)
	}
}

func Test_RejectEmptyPeerBlock(t *testing.T) {
	t.Log("Given the need to reject a peer block carrying no transactions when policy forbids it.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		st := newState(t, proposerID)

		gen := st.RetrieveGenesis()
		parent := st.RetrieveHead()

		emptyBlk, err := database.Assemble(database.AssembleArgs{
			Height:          1,
			PrevBlockHash:   parent.Hash(),
			ParentTimeStamp: parent.Header.TimeStamp,
			ProposerID:      proposerID,
			AllowEmpty:      true,
		})
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to assemble an empty block: %v", failed, err)
		}

		engine, err := consensus.New(consensus.Config{Genesis: gen})
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to construct an engine: %v", failed, err)
		}
		if err := engine.GenerateProof(context.Background(), &emptyBlk, consensus.ProofArgs{}); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to seal a proof: %v", failed, err)
		}

		err = st.ProcessProposedBlock(emptyBlk)
		if !errors.Is(err, database.ErrEmptyBlock) {
			t.Fatalf("\t%s\tTest 0:\tShould reject the empty block: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould reject the empty block.", success)

		if head := st.RetrieveHead(); head.Header.Height != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould hold the head at genesis: %d", failed, head.Header.Height)
		}
		t.Logf("\t%s\tTest 0:\tShould hold the head at genesis.", success)
	}
}

func Test_SubmitAnomalousConfiguration(t *testing.T) {
	t.Log("Given the need to screen configuration commands against the anomaly baseline on submit.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		st := newState(t, proposerID)

		// Confirm enough single-parameter configuration commands to establish
		// the baseline.
		for nonce := uint64(1); nonce <= 8; nonce++ {
			cfgTx := signConfigTx(t, nonce, map[string]string{"key": "steady"})
			if err := st.SubmitWalletTransaction(cfgTx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept a steady configuration command: %v", failed, err)
			}
			if _, err := st.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
		}
		t.Logf("\t%s\tTest 0:\tShould accept steady configuration commands.", success)

		burstParams := make(map[string]string)
		for i := 0; i < 12; i++ {
			burstParams[string(rune('a'+i))] = "burst"
		}

		err := st.SubmitWalletTransaction(signConfigTx(t, 9, burstParams))
		if !errors.Is(err, database.ErrAnomalyDetected) {
			t.Fatalf("\t%s\tTest 1:\tShould reject a configuration burst on submit: %v", failed, err)
		}
		t.Logf("\t%s\tTest 1:\tShould reject a configuration burst on submit.", success)

		if got := len(st.RetrieveMempool()); got != 0 {
			t.Fatalf("\t%s\tTest 1:\tShould keep the burst out of the pool: %d", failed, got)
		}
		t.Logf("\t%s\tTest 1:\tShould keep the burst out of the pool.", success)
	}
}

func Test_QueryBlocks(t *testing.T) {
	t.Log("Given the need to query the canonical chain.")
	{
		proposerID := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		st := newState(t, proposerID)

		for nonce := uint64(1); nonce <= 3; nonce++ {
			if err := st.SubmitWalletTransaction(signTx(t, nonce, nonce*100)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept a valid transaction: %v", failed, err)
			}
			if _, err := st.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
		}

		blocks := st.QueryBlocksByHeight(1, 2)
		if len(blocks) != 2 || blocks[0].Header.Height != 1 || blocks[1].Header.Height != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould return the requested height range: %d", failed, len(blocks))
		}
		t.Logf("\t%s\tTest 0:\tShould return the requested height range.", success)

		latest := st.QueryBlocksByHeight(state.QueryLatest, state.QueryLatest)
		if len(latest) != 1 || latest[0].Header.Height != 3 {
			t.Fatalf("\t%s\tTest 0:\tShould resolve the latest marker to the head: %d", failed, len(latest))
		}
		t.Logf("\t%s\tTest 0:\tShould resolve the latest marker to the head.", success)

		pk, err := crypto.HexToECDSA(testKeyHex)
		if err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould be able to load the test key: %v", failed, err)
		}

		byAccount := st.QueryBlocksByAccount(database.PublicKeyToAccountID(pk.PublicKey))
		if len(byAccount) != 3 {
			t.Fatalf("\t%s\tTest 1:\tShould find every block carrying the account's transactions: %d", failed, len(byAccount))
		}
		t.Logf("\t%s\tTest 1:\tShould find every block carrying the account's transactions.", success)

		if got := st.QueryBlocksByAccount("0x0000000000000000000000000000000000000001"); len(got) != 0 {
			t.Fatalf("\t%s\tTest 1:\tShould find nothing for an unknown account: %d", failed, len(got))
		}
		t.Logf("\t%s\tTest 1:\tShould find nothing for an unknown account.", success)
	}
}
