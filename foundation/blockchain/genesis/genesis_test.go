package genesis_test

import (
	"testing"
	"time"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Load(t *testing.T) {
	t.Log("Given the need to load the chain policy from the genesis file.")
	{
		gen, err := genesis.Load("testdata/genesis.json")
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to load the genesis file: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould be able to load the genesis file.", success)

		if !gen.Date.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("\t%s\tTest 0:\tShould parse the genesis date: %v", failed, gen.Date)
		}
		if gen.ChainID != 1 || gen.Difficulty != 12 || gen.RetargetWindow != 16 {
			t.Fatalf("\t%s\tTest 0:\tShould parse the consensus policy: %+v", failed, gen)
		}
		if gen.FeeMicros != 100 || gen.MaxStakeWeight != 1000 || gen.RiskThreshold != 0.001 {
			t.Fatalf("\t%s\tTest 0:\tShould parse the economics policy: %+v", failed, gen)
		}
		if gen.AllowEmptyBlocks {
			t.Fatalf("\t%s\tTest 0:\tShould parse the empty block policy.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould parse every policy knob.", success)

		if _, err := genesis.Load("testdata/missing.json"); err == nil {
			t.Fatalf("\t%s\tTest 1:\tShould report a missing genesis file.", failed)
		}
		t.Logf("\t%s\tTest 1:\tShould report a missing genesis file.", success)
	}
}
