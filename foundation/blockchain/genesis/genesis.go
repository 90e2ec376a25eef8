// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file and the chain policy knobs every node
// must agree on.
type Genesis struct {
	Date               time.Time `json:"date"`
	ChainID            uint16    `json:"chain_id"`             // Unique id for this running instance.
	TransPerBlock      int       `json:"trans_per_block"`      // Maximum number of transactions in a block.
	Difficulty         uint      `json:"difficulty"`           // Leading zero bits required of a block hash at genesis.
	TargetInterval     uint64    `json:"target_interval"`      // Desired seconds between blocks.
	RetargetWindow     uint64    `json:"retarget_window"`      // Blocks between difficulty retargets.
	RetargetClampBits  uint      `json:"retarget_clamp_bits"`  // Max bits the difficulty may move per retarget (2 bits = 4x).
	FeeMicros          uint64    `json:"fee_micros"`           // Proposer incentive per million units of declared output value.
	MaxStakeWeight     uint      `json:"max_stake_weight"`     // Upper bound for a proposer's declared stake weight.
	AllowEmptyBlocks   bool      `json:"allow_empty_blocks"`   // Whether non-genesis blocks may carry no transactions.
	CheckpointInterval uint64    `json:"checkpoint_interval"`  // Blocks between security ledger checkpoints.
	AnomalyMultiplier  float64   `json:"anomaly_multiplier"`   // Stddev multiple a config delta may exceed the baseline by.
	RiskThreshold      float64   `json:"risk_threshold"`       // Acceptable chain rewrite probability for finality.
	OrphanRetries      int       `json:"orphan_retries"`       // Admission attempts before an orphan is discarded.
	OrphanHorizon      uint64    `json:"orphan_horizon"`       // Seconds an orphan may wait for its parent.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
