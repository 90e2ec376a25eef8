// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyValue = "value"
	StrategyFIFO  = "fifo"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyValue: valueSelect,
	StrategyFIFO:  fifoSelect,
}

// Func defines a function that takes a mempool of transactions grouped by
// sender and selects howMany of them in an order based on the function's
// strategy. All selector functions MUST respect nonce ordering per sender.
// Receiving -1 for howMany must return all the transactions in the
// strategy's ordering.
type Func func(transactions map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byNonce provides sorting support by the transaction nonce value.
type byNonce []database.SignedTx

// Len returns the number of transactions in the list.
func (bn byNonce) Len() int {
	return len(bn)
}

// Less helps to sort the list by nonce in ascending order to keep the
// transactions in the right order of processing.
func (bn byNonce) Less(i, j int) bool {
	return bn[i].Nonce < bn[j].Nonce
}

// Swap moves transactions in the order of the nonce value.
func (bn byNonce) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}

// =============================================================================

// byValue provides sorting support by the declared output value.
type byValue []database.SignedTx

// Len returns the number of transactions in the list.
func (bv byValue) Len() int {
	return len(bv)
}

// Less helps to sort the list by declared value in descending order to pick
// the transactions that provide the best incentive.
func (bv byValue) Less(i, j int) bool {
	return bv[i].OutputValue() > bv[j].OutputValue()
}

// Swap moves transactions in the order of the declared value.
func (bv byValue) Swap(i, j int) {
	bv[i], bv[j] = bv[j], bv[i]
}

// =============================================================================

// byTimeStamp provides sorting support by the transaction creation time.
type byTimeStamp []database.SignedTx

// Len returns the number of transactions in the list.
func (bt byTimeStamp) Len() int {
	return len(bt)
}

// Less helps to sort the list by creation time in ascending order so older
// transactions are selected first.
func (bt byTimeStamp) Less(i, j int) bool {
	return bt[i].TimeStamp < bt[j].TimeStamp
}

// Swap moves transactions in the order of the creation time.
func (bt byTimeStamp) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}
