package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/signature"
)

// configPrefix marks command descriptors that alter node or chain
// configuration. These transactions are subject to anomaly detection.
const configPrefix = "config."

// =============================================================================

// Command describes the operating-system level intent a transaction records,
// such as a resource allocation request or a data exchange.
type Command struct {
	Descriptor string            `json:"descriptor"`       // e.g. "allocate", "exchange", "config.limits".
	Params     map[string]string `json:"params,omitempty"` // Opaque command parameters.
}

// IsConfiguration reports whether the command is configuration-class.
func (c Command) IsConfiguration() bool {
	return strings.HasPrefix(c.Descriptor, configPrefix)
}

// TxInput references a prior transaction output being consumed. The list may
// be empty for genesis-style issuance.
type TxInput struct {
	TxID        string `json:"txid"`
	OutputIndex int    `json:"output_index"`
}

// TxOutput describes an intended resulting state with a declared value used
// for incentive computation.
type TxOutput struct {
	Kind  string            `json:"kind"`           // e.g. "memory_allocation", "data_exchange".
	Value uint64            `json:"value"`          // Declared value in ledger units.
	Meta  map[string]string `json:"meta,omitempty"` // Opaque state values.
}

// =============================================================================

// Tx is the record of an intended state change submitted to the ledger.
// The canonical encoding used for hashing and signing is the JSON encoding
// of this struct: field order is fixed by the struct layout and all numerics
// are fixed-width integers, so the txid is byte-stable across nodes.
type Tx struct {
	SenderID    AccountID  `json:"sender_id"`             // Account submitting the command.
	Nonce       uint64     `json:"nonce"`                 // Sender-chosen uniqueness token.
	Command     Command    `json:"command"`               // The intended operation.
	Inputs      []TxInput  `json:"inputs"`                // References to prior outputs.
	Outputs     []TxOutput `json:"outputs"`               // Intended resulting states.
	TimeStamp   uint64     `json:"timestamp"`             // Time the transaction was created.
	Commitment  string     `json:"commitment,omitempty"`  // Emulator Veil blinding commitment.
	Attestation string     `json:"attestation,omitempty"` // Emulator Veil attestation token.
}

// NewTx constructs a new transaction.
func NewTx(senderID AccountID, nonce uint64, command Command, inputs []TxInput, outputs []TxOutput) (Tx, error) {
	if !senderID.IsAccountID() {
		return Tx{}, fmt.Errorf("sender account is not properly formatted")
	}

	if len(outputs) == 0 {
		return Tx{}, ErrInvalidInput
	}

	tx := Tx{
		SenderID:  senderID,
		Nonce:     nonce,
		Command:   command,
		Inputs:    inputs,
		Outputs:   outputs,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}

	return tx, nil
}

// WithVeil attaches an Emulator Veil commitment and attestation token to the
// transaction. Must be called before signing.
func (tx Tx) WithVeil(commitment string, attestation string) Tx {
	tx.Commitment = commitment
	tx.Attestation = attestation
	return tx
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if len(tx.Outputs) == 0 {
		return SignedTx{}, ErrInvalidInput
	}

	// Sign the canonical encoding of the transaction to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the ledger.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with aetherID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards, that the signer matches the declared sender, and that the
// privacy fields are well formed when present.
func (tx SignedTx) Validate() error {
	if len(tx.Outputs) == 0 {
		return ErrInvalidInput
	}

	if !tx.SenderID.IsAccountID() {
		return fmt.Errorf("%w: invalid sender account", ErrInvalidSignature)
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	// The account recovered from the signature must be the declared sender.
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if AccountID(address) != tx.SenderID {
		return fmt.Errorf("%w: signer %s does not match sender %s", ErrInvalidSignature, address, tx.SenderID)
	}

	if err := tx.validateVeil(); err != nil {
		return err
	}

	return nil
}

// validateVeil checks the presence and format of the veil fields.
// Their cryptographic derivation is the veil provider's concern and is
// treated as already verified.
func (tx SignedTx) validateVeil() error {
	if tx.Commitment == "" && tx.Attestation == "" {
		return nil
	}

	if tx.Commitment == "" || tx.Attestation == "" {
		return fmt.Errorf("veil commitment and attestation must both be present")
	}

	c := strings.TrimPrefix(tx.Commitment, "0x")
	if len(c) != 64 {
		return fmt.Errorf("veil commitment must be a 32 byte hex value")
	}
	if _, err := hex.DecodeString(c); err != nil {
		return fmt.Errorf("veil commitment is not valid hex: %w", err)
	}

	return nil
}

// TxID returns the unique id for the transaction: the hash of the canonical
// encoding of all fields excluding the signature.
func (tx SignedTx) TxID() string {
	return signature.Hash(tx.Tx)
}

// UniqueKey returns the replay identity of the transaction. The pair
// (sender, nonce) must never repeat across the accepted history.
func (tx SignedTx) UniqueKey() string {
	return fmt.Sprintf("%s:%d", tx.SenderID, tx.Nonce)
}

// OutputValue returns the aggregate declared value of the outputs.
func (tx SignedTx) OutputValue() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Value
	}
	return total
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d:%s", tx.SenderID, tx.Nonce, tx.Command.Descriptor)
}

// Hash implements the merkle Hashable interface for providing a hash of a
// transaction. The hash is the raw txid bytes so the merkle root commits to
// transaction identity.
func (tx SignedTx) Hash() ([]byte, error) {
	return hex.DecodeString(tx.TxID()[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions. If the nonce and signatures are the same,
// the two transactions are the same.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Nonce == otherTx.Nonce && string(txSig) == string(otherTxSig)
}
