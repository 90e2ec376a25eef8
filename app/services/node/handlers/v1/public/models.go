package public

import (
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// tx is the API view of a signed transaction.
type tx struct {
	SenderID   database.AccountID  `json:"sender_id"`
	SenderName string              `json:"sender_name"`
	Nonce      uint64              `json:"nonce"`
	Descriptor string              `json:"descriptor"`
	Params     map[string]string   `json:"params,omitempty"`
	Inputs     []database.TxInput  `json:"inputs,omitempty"`
	Outputs    []database.TxOutput `json:"outputs"`
	Value      uint64              `json:"value"`
	Veiled     bool                `json:"veiled"`
	TimeStamp  uint64              `json:"timestamp"`
	TxID       string              `json:"txid"`
	Sig        string              `json:"sig"`
}

// block is the API view of a sealed block.
type block struct {
	Hash          string `json:"hash"`
	PrevBlockHash string `json:"prev_block_hash"`
	Height        uint64 `json:"height"`
	MerkleRoot    string `json:"merkle_root"`
	TimeStamp     uint64 `json:"timestamp"`
	ProposerID    string `json:"proposer_id"`
	ProposerName  string `json:"proposer_name"`
	Target        uint   `json:"target"`
	StakeWeight   uint   `json:"stake_weight"`
	SolutionNonce uint64 `json:"solution_nonce"`
	Incentive     uint64 `json:"incentive"`
	Transactions  []tx   `json:"transactions"`
}

// chainStatus is the API view of the node's chain summary.
type chainStatus struct {
	HeadBlockHash    string `json:"head_block_hash"`
	HeadHeight       uint64 `json:"head_height"`
	HeadWeight       uint64 `json:"head_weight"`
	CurrentTarget    uint   `json:"current_target"`
	ObservedInterval uint64 `json:"observed_interval"`
	Uncommitted      int    `json:"uncommitted"`
	Orphans          int    `json:"orphans"`
	Checkpoints      int    `json:"checkpoints"`
}

// toTx builds the API view of a transaction.
func toTx(signedTx database.SignedTx, lookup func(database.AccountID) string) tx {
	return tx{
		SenderID:   signedTx.SenderID,
		SenderName: lookup(signedTx.SenderID),
		Nonce:      signedTx.Nonce,
		Descriptor: signedTx.Command.Descriptor,
		Params:     signedTx.Command.Params,
		Inputs:     signedTx.Inputs,
		Outputs:    signedTx.Outputs,
		Value:      signedTx.OutputValue(),
		Veiled:     signedTx.Commitment != "",
		TimeStamp:  signedTx.TimeStamp,
		TxID:       signedTx.TxID(),
		Sig:        signedTx.SignatureString(),
	}
}

// toBlock builds the API view of a block.
func toBlock(blk database.Block, incentive uint64, lookup func(database.AccountID) string) block {
	dbTrans := blk.Transactions()
	trans := make([]tx, len(dbTrans))
	for i, tran := range dbTrans {
		trans[i] = toTx(tran, lookup)
	}

	return block{
		Hash:          blk.Hash(),
		PrevBlockHash: blk.Header.PrevBlockHash,
		Height:        blk.Header.Height,
		MerkleRoot:    blk.Header.MerkleRoot,
		TimeStamp:     blk.Header.TimeStamp,
		ProposerID:    string(blk.Header.ProposerID),
		ProposerName:  lookup(blk.Header.ProposerID),
		Target:        blk.Header.Proof.Target,
		StakeWeight:   blk.Header.Proof.StakeWeight,
		SolutionNonce: blk.Header.Proof.SolutionNonce,
		Incentive:     incentive,
		Transactions:  trans,
	}
}
