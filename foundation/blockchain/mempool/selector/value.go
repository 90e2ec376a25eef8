package selector

import (
	"sort"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// valueSelect returns transactions with the best declared output value while
// respecting the nonce ordering for each sender.
var valueSelect = func(m map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx {

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Pick the first transaction in the slice for each sender. Each
	// iteration represents a new row of selections. Keep doing that
	// until all the transactions have been selected.
	var rows [][]database.SignedTx
	for {
		var row []database.SignedTx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	if howMany == -1 {
		howMany = 0
		for _, row := range rows {
			howMany += len(row)
		}
	}

	// Sort each row by declared value unless we will take all transactions
	// from that row anyway. Keep pulling transactions from each row until
	// the amount is fulfilled or there are no more transactions.
	final := []database.SignedTx{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byValue(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
