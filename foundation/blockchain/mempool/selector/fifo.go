package selector

import (
	"sort"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
)

// fifoSelect returns the oldest transactions first while respecting the
// nonce ordering for each sender.
var fifoSelect = func(m map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx {

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Flatten the groups, keeping per-sender nonce order intact, then order
	// senders' first transactions by age.
	var all []database.SignedTx
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
		sort.Sort(byTimeStamp(row))
		all = append(all, row...)
	}

	if howMany == -1 || howMany > len(all) {
		howMany = len(all)
	}

	return all[:howMany]
}
