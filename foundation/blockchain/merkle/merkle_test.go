package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// payload implements the Hashable interface for testing.
type payload struct {
	Value string
}

// Hash implements the merkle Hashable interface.
func (p payload) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(p.Value))
	return h[:], nil
}

// Equals implements the merkle Hashable interface.
func (p payload) Equals(other payload) bool {
	return p.Value == other.Value
}

func values(vs ...string) []payload {
	ps := make([]payload, len(vs))
	for i, v := range vs {
		ps[i] = payload{Value: v}
	}
	return ps
}

func Test_TreeConstruction(t *testing.T) {
	tests := []struct {
		name   string
		values []payload
	}{
		{"even leaf count", values("a", "b", "c", "d")},
		{"odd leaf count", values("a", "b", "c")},
		{"single leaf", values("a")},
	}

	t.Log("Given the need to build and verify merkle trees over block data.")
	{
		for testID, tt := range tests {
			t.Logf("\tTest %d:\tWhen handling a tree with %s.", testID, tt.name)
			{
				tree, err := merkle.NewTree(tt.values)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to build the tree.", success, testID)

				if err := tree.Verify(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to verify the tree: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to verify the tree.", success, testID)

				if len(tree.RootHex()) == 0 {
					t.Fatalf("\t%s\tTest %d:\tShould produce a non-empty root.", failed, testID)
				}

				if len(tree.Values()) != len(tt.values) {
					t.Fatalf("\t%s\tTest %d:\tShould retain the original values: %d", failed, testID, len(tree.Values()))
				}
				t.Logf("\t%s\tTest %d:\tShould retain the original values.", success, testID)
			}
		}

		t.Logf("\tTest 3:\tWhen comparing trees over different data.")
		{
			tree1, err := merkle.NewTree(values("a", "b", "c", "d"))
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to build the tree: %v", failed, err)
			}
			tree2, err := merkle.NewTree(values("a", "b", "c", "e"))
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to build the tree: %v", failed, err)
			}

			if tree1.RootHex() == tree2.RootHex() {
				t.Fatalf("\t%s\tTest 3:\tShould produce different roots for different data.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould produce different roots for different data.", success)
		}

		t.Logf("\tTest 4:\tWhen the tree is empty.")
		{
			if _, err := merkle.NewTree([]payload{}); err == nil {
				t.Fatalf("\t%s\tTest 4:\tShould reject an empty value list.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould reject an empty value list.", success)
		}
	}
}

func Test_MembershipProof(t *testing.T) {
	t.Log("Given the need to prove membership of a value in the tree.")
	{
		vs := values("a", "b", "c", "d", "e")

		tree, err := merkle.NewTree(vs)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
		}

		for testID, v := range vs {
			proof, order, err := tree.Proof(v)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to produce a proof: %v", failed, testID, err)
			}

			if err := tree.VerifyProof(v, proof, order); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to verify the proof: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to prove membership of %q.", success, testID, v.Value)
		}

		t.Logf("\tTest 5:\tWhen the value is not in the tree.")
		{
			if _, _, err := tree.Proof(payload{Value: "zz"}); err == nil {
				t.Fatalf("\t%s\tTest 5:\tShould refuse a proof for a missing value.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould refuse a proof for a missing value.", success)
		}

		t.Logf("\tTest 6:\tWhen the proof is applied to the wrong value.")
		{
			proof, order, err := tree.Proof(vs[0])
			if err != nil {
				t.Fatalf("\t%s\tTest 6:\tShould be able to produce a proof: %v", failed, err)
			}

			if err := tree.VerifyProof(vs[1], proof, order); err == nil {
				t.Fatalf("\t%s\tTest 6:\tShould reject a proof for a different value.", failed)
			}
			t.Logf("\t%s\tTest 6:\tShould reject a proof for a different value.", success)
		}
	}
}
