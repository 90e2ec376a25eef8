package mempool_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/mempool"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const testKeyHex = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func sign(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, value uint64) database.SignedTx {
	t.Helper()

	tx, err := database.NewTx(
		database.PublicKeyToAccountID(pk.PublicKey),
		nonce,
		database.Command{Descriptor: "exchange.data"},
		nil,
		[]database.TxOutput{{Kind: "data", Value: value}},
	)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %v", failed, err)
	}

	return signedTx
}

func Test_CRUD(t *testing.T) {
	pk, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the test key: %v", failed, err)
	}

	t.Log("Given the need to manage the pending transaction pool.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to construct a mempool: %v", failed, err)
		}

		tx1 := sign(t, pk, 1, 100)
		tx2 := sign(t, pk, 2, 200)

		if _, err := mp.Upsert(tx1); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to upsert a transaction: %v", failed, err)
		}
		if _, err := mp.Upsert(tx2); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to upsert a transaction: %v", failed, err)
		}
		if mp.Count() != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould hold two transactions: %d", failed, mp.Count())
		}
		t.Logf("\t%s\tTest 0:\tShould hold two transactions.", success)

		// Upserting the same identity replaces, never duplicates.
		if _, err := mp.Upsert(sign(t, pk, 2, 999)); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to upsert a replacement: %v", failed, err)
		}
		if mp.Count() != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould replace an existing identity: %d", failed, mp.Count())
		}
		t.Logf("\t%s\tTest 0:\tShould replace an existing identity.", success)

		if !mp.Knows(tx1.SenderID, 1) {
			t.Fatalf("\t%s\tTest 0:\tShould know a pooled identity.", failed)
		}
		if mp.Knows(tx1.SenderID, 9) {
			t.Fatalf("\t%s\tTest 0:\tShould not know an unseen identity.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould track identities by sender and nonce.", success)

		mp.Delete(tx1)
		if mp.Count() != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould be able to delete a transaction: %d", failed, mp.Count())
		}
		t.Logf("\t%s\tTest 0:\tShould be able to delete a transaction.", success)

		mp.Truncate()
		if mp.Count() != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould be able to truncate the pool: %d", failed, mp.Count())
		}
		t.Logf("\t%s\tTest 0:\tShould be able to truncate the pool.", success)
	}
}

func Test_PickBest(t *testing.T) {
	pk1, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the test key: %v", failed, err)
	}
	pk2, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
	}

	t.Log("Given the need to pick the best transactions for the next block.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to construct a mempool: %v", failed, err)
		}

		for nonce := uint64(1); nonce <= 3; nonce++ {
			if _, err := mp.Upsert(sign(t, pk1, nonce, nonce*100)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to upsert a transaction: %v", failed, err)
			}
			if _, err := mp.Upsert(sign(t, pk2, nonce, nonce*50)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to upsert a transaction: %v", failed, err)
			}
		}

		picked := mp.PickBest(4)
		if len(picked) != 4 {
			t.Fatalf("\t%s\tTest 0:\tShould pick the requested number of transactions: %d", failed, len(picked))
		}
		t.Logf("\t%s\tTest 0:\tShould pick the requested number of transactions.", success)

		// Nonce order per sender must hold in the selection.
		lastNonce := make(map[database.AccountID]uint64)
		for _, tx := range picked {
			if last, seen := lastNonce[tx.SenderID]; seen && tx.Nonce <= last {
				t.Fatalf("\t%s\tTest 0:\tShould respect nonce ordering per sender: %d after %d", failed, tx.Nonce, last)
			}
			lastNonce[tx.SenderID] = tx.Nonce
		}
		t.Logf("\t%s\tTest 0:\tShould respect nonce ordering per sender.", success)

		all := mp.PickBest(-1)
		if len(all) != 6 {
			t.Fatalf("\t%s\tTest 0:\tShould return the whole pool for -1: %d", failed, len(all))
		}
		t.Logf("\t%s\tTest 0:\tShould return the whole pool for -1.", success)
	}
}
