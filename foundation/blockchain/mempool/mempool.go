// Package mempool maintains the pending transaction pool for the ledger.
package mempool

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of transactions organized by sender:nonce.
type Mempool struct {
	pool     map[string]database.SignedTx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyValue)
}

// NewWithStrategy constructs a new mempool with the specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.SignedTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool.
func (mp *Mempool) Upsert(tx database.SignedTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.UniqueKey()] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.UniqueKey())
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.SignedTx)
}

// Knows reports whether a transaction with the specified sender and nonce
// is waiting in the pool. Used for replay detection before acceptance.
func (mp *Mempool) Knows(senderID database.AccountID, nonce uint64) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[fmt.Sprintf("%s:%d", senderID, nonce)]
	return exists
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block. Passing -1 returns the whole pool.
func (mp *Mempool) PickBest(howMany int) []database.SignedTx {

	// Group the transactions by sender.
	m := make(map[database.AccountID][]database.SignedTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for key, tx := range mp.pool {
			senderID := database.AccountID(strings.Split(key, ":")[0])
			m[senderID] = append(m[senderID], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}
