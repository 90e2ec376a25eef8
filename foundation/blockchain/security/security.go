// Package security implements the node's security monitor: the replay
// ledger, anomaly detection over configuration commands, periodic ledger
// checkpoints, and the finality confirmation estimate.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/genesis"
)

// minBaselineSamples is the number of recorded blocks required before the
// anomaly detector has a usable baseline. Until then every block passes.
const minBaselineSamples = 8

// maxConfirmations bounds the confirmation search so a hostile fraction
// close to one half cannot produce an unbounded requirement.
const maxConfirmations = 64

// =============================================================================

// Checkpoint captures a digest of the confirmed ledger at a height. The
// digest chains to the previous checkpoint, so tampering with any covered
// block invalidates every later checkpoint.
type Checkpoint struct {
	Height uint64 `json:"height"`
	Digest string `json:"digest"`
}

// Monitor tracks confirmed transaction identities, the configuration-command
// baseline and the checkpoint chain. All state is derived from the canonical
// branch and can be rebuilt after a reorganization.
type Monitor struct {
	genesis   genesis.Genesis
	evHandler func(v string, args ...any)

	mu          sync.RWMutex
	seen        map[string]struct{} // Confirmed replay identities, keyed sender:nonce.
	samples     []float64           // Configuration command count per recorded block.
	txSamples   []float64           // Parameter count per confirmed configuration command.
	checkpoints []Checkpoint
	pendingHash []string // Block hashes since the last checkpoint.
	height      uint64   // Height of the last recorded block.
}

// NewMonitor constructs a security monitor for the given chain policy.
func NewMonitor(gen genesis.Genesis, evHandler func(v string, args ...any)) *Monitor {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Monitor{
		genesis:   gen,
		evHandler: ev,
		seen:      make(map[string]struct{}),
	}
}

// =============================================================================

// CheckReplay validates the transaction's replay identity is not already
// confirmed on the canonical branch.
func (m *Monitor) CheckReplay(tx database.SignedTx) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.seen[tx.UniqueKey()]; exists {
		return fmt.Errorf("%w: identity %s already confirmed", database.ErrDuplicateTransaction, tx.UniqueKey())
	}

	return nil
}

// Knows reports whether the replay identity is confirmed.
func (m *Monitor) Knows(senderID database.AccountID, nonce uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.seen[fmt.Sprintf("%s:%d", senderID, nonce)]
	return exists
}

// CheckTxAnomaly flags a configuration-class command whose proposed delta,
// measured as its parameter count, deviates from the confirmed baseline by
// more than the configured number of standard deviations. Run on the submit
// path before a transaction is pooled. Non-configuration commands never trip
// the detector.
func (m *Monitor) CheckTxAnomaly(tx database.SignedTx) error {
	if !tx.Command.IsConfiguration() {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.txSamples) < minBaselineSamples {
		return nil
	}

	mean, stddev := baseline(m.txSamples)
	limit := mean + m.genesis.AnomalyMultiplier*stddev

	if delta := float64(len(tx.Command.Params)); delta > limit {
		return fmt.Errorf("%w: command delta %.0f exceeds limit %.2f (mean %.2f, stddev %.2f)", database.ErrAnomalyDetected, delta, limit, mean, stddev)
	}

	return nil
}

// CheckAnomaly flags blocks whose configuration-command count deviates from
// the recorded baseline by more than the configured number of standard
// deviations. Non-configuration commands never trip the detector.
func (m *Monitor) CheckAnomaly(block database.Block) error {
	delta := configDelta(block)
	if delta == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.samples) < minBaselineSamples {
		return nil
	}

	mean, stddev := baseline(m.samples)
	limit := mean + m.genesis.AnomalyMultiplier*stddev

	if delta > limit {
		return fmt.Errorf("%w: configuration delta %.0f exceeds limit %.2f (mean %.2f, stddev %.2f)", database.ErrAnomalyDetected, delta, limit, mean, stddev)
	}

	return nil
}

// Record folds an accepted block into the monitor: replay identities, the
// anomaly baseline, and the checkpoint chain.
func (m *Monitor) Record(block database.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(block)
}

// Rebuild recomputes the monitor's state from scratch over the canonical
// branch. Called after a reorganization moved the head to a different fork.
func (m *Monitor) Rebuild(branch []database.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen = make(map[string]struct{})
	m.samples = nil
	m.txSamples = nil
	m.checkpoints = nil
	m.pendingHash = nil
	m.height = 0

	for _, block := range branch {
		m.record(block)
	}

	m.evHandler("security: Rebuild: replayed %d blocks, %d identities, %d checkpoints", len(branch), len(m.seen), len(m.checkpoints))
}

// Checkpoints returns a copy of the checkpoint chain.
func (m *Monitor) Checkpoints() []Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cps := make([]Checkpoint, len(m.checkpoints))
	copy(cps, m.checkpoints)
	return cps
}

// LatestCheckpoint returns the most recent checkpoint, if one exists.
func (m *Monitor) LatestCheckpoint() (Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return m.checkpoints[len(m.checkpoints)-1], true
}

// =============================================================================

// RequiredConfirmations returns the minimum number of blocks that must be
// built on top of a transaction before the probability of a hostile rewrite
// drops below the chain's risk threshold. The hostile fraction is the share
// of total compute assumed adversarial.
func (m *Monitor) RequiredConfirmations(hostileFraction float64) uint {
	if hostileFraction <= 0 {
		return 1
	}
	if hostileFraction >= 0.5 {
		return maxConfirmations
	}

	for z := uint(1); z <= maxConfirmations; z++ {
		if rewriteProbability(hostileFraction, z) < m.genesis.RiskThreshold {
			return z
		}
	}

	return maxConfirmations
}

// rewriteProbability estimates the chance an attacker controlling fraction q
// of the compute produces at least z of the next 2z blocks, overtaking the
// honest branch.
func rewriteProbability(q float64, z uint) float64 {
	n := 2 * z

	var p float64
	for k := z; k <= n; k++ {
		p += binomial(n, k) * math.Pow(q, float64(k)) * math.Pow(1-q, float64(n-k))
	}

	if p > 1 {
		p = 1
	}
	return p
}

// binomial computes C(n, k) in floating point. The confirmation bound keeps
// n small enough that precision is not a concern.
func binomial(n, k uint) float64 {
	if k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}

	result := 1.0
	for i := uint(0); i < k; i++ {
		result = result * float64(n-i) / float64(i+1)
	}
	return result
}

// =============================================================================

// record assumes the caller holds the write lock.
func (m *Monitor) record(block database.Block) {
	for _, tx := range block.Transactions() {
		m.seen[tx.UniqueKey()] = struct{}{}
		if tx.Command.IsConfiguration() {
			m.txSamples = append(m.txSamples, float64(len(tx.Command.Params)))
		}
	}

	m.samples = append(m.samples, configDelta(block))
	m.height = block.Header.Height
	m.pendingHash = append(m.pendingHash, block.Hash())

	interval := m.genesis.CheckpointInterval
	if interval > 0 && block.Header.Height > 0 && block.Header.Height%interval == 0 {
		m.checkpoints = append(m.checkpoints, Checkpoint{
			Height: block.Header.Height,
			Digest: m.digest(),
		})
		m.pendingHash = m.pendingHash[:0]

		m.evHandler("security: Record: checkpoint sealed: height[%d]", block.Header.Height)
	}
}

// digest chains the previous checkpoint digest with the block hashes
// accumulated since it.
func (m *Monitor) digest() string {
	h := sha256.New()

	if len(m.checkpoints) > 0 {
		h.Write([]byte(m.checkpoints[len(m.checkpoints)-1].Digest))
	}
	for _, hash := range m.pendingHash {
		h.Write([]byte(hash))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// configDelta counts the configuration-class commands a block carries.
func configDelta(block database.Block) float64 {
	var count float64
	for _, tx := range block.Transactions() {
		if tx.Command.IsConfiguration() {
			count++
		}
	}
	return count
}

// baseline computes the mean and standard deviation of the samples.
func baseline(samples []float64) (mean float64, stddev float64) {
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))

	return mean, math.Sqrt(variance)
}
