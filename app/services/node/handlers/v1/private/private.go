// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aetherlabs/aetherchain/business/sys/validate"
	"github.com/aetherlabs/aetherchain/business/web/errs"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/chain"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/peer"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/state"
	"github.com/aetherlabs/aetherchain/foundation/nameservice"
	"github.com/aetherlabs/aetherchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// Status returns this node's chain status for peer synchronization.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	head := h.State.RetrieveHead()

	ps := peer.PeerStatus{
		HeadBlockHash:   head.Hash(),
		HeadBlockHeight: head.Header.Height,
		HeadWeight:      h.State.RetrieveHeadWeight(),
		KnownPeers:      h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, ps, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions in wire form.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}

// BlocksByHeight returns the canonical blocks in the height range in wire
// form. Either value may be the word latest.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := parseHeight(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := parseHeight(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByHeight(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocksData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blocksData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blocksData, http.StatusOK)
}

// SubmitNodeTransaction adds a new peer transaction to the mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add node tran", "traceid", v.TraceID, "sender:nonce", signedTx, "command", signedTx.Command.Descriptor)
	if err := h.State.SubmitNodeTransaction(signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and
// if that passes, links it into the block forest.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	// Decode the JSON in the post call into the block wire form.
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	// Convert the wire form into a block. This rebuilds the merkle tree
	// for the set of transactions.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return fmt.Errorf("unable to decode block: %w", err)
	}

	// Ask the state package to run the block through the admission
	// pipeline. Resubmission of a known block is not a failure.
	if err := h.State.ProcessProposedBlock(block); err != nil {
		if errors.Is(err, chain.ErrBlockKnown) {
			resp := struct {
				Status string `json:"status"`
			}{
				Status: "block already known",
			}
			return web.Respond(ctx, w, resp, http.StatusOK)
		}

		return errs.NewTrusted(err, http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "block accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// PeerAnnounce adds the calling node to the known peer set.
func (h Handlers) PeerAnnounce(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var announce struct {
		Host string `json:"host" validate:"required,hostname_port"`
	}
	if err := web.Decode(r, &announce); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}
	if err := validate.Check(announce); err != nil {
		return err
	}

	added := h.State.AddKnownPeer(peer.New(announce.Host))
	if added {
		h.Log.Infow("peer announce", "host", announce.Host)
	}

	resp := struct {
		Status string `json:"status"`
		Added  bool   `json:"added"`
	}{
		Status: "peer recorded",
		Added:  added,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// parseHeight converts a path segment to a height, accepting the word latest.
func parseHeight(s string) (uint64, error) {
	if s == "latest" {
		return state.QueryLatest, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
