package worker

// Sync updates the peer list, mempool and forest before the node starts
// accepting work. A peer is worth pulling blocks from when its head carries
// more cumulative weight than ours, not merely more height.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: requestPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: requestPeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			w.evHandler("worker: sync: requestPeerMempool: %s: Add Tx: %s", pr.Host, tx.SignatureString()[:16])
			if err := w.state.SubmitNodeTransaction(tx); err != nil {
				w.evHandler("worker: sync: requestPeerMempool: %s: WARNING: %s", pr.Host, err)
			}
		}

		// If this peer's branch outweighs ours, pull their blocks.
		if peerStatus.HeadWeight > w.state.RetrieveHeadWeight() {
			w.evHandler("worker: sync: requestPeerBlocks: %s: head-weight[%d]", pr.Host, peerStatus.HeadWeight)

			if err := w.state.NetRequestPeerBlocks(pr); err != nil {
				w.evHandler("worker: sync: requestPeerBlocks: %s: ERROR %s", pr.Host, err)
			}
		}
	}
}
