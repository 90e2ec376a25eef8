// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aetherlabs/aetherchain/business/web/errs"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/state"
	"github.com/aetherlabs/aetherchain/foundation/events"
	"github.com/aetherlabs/aetherchain/foundation/nameservice"
	"github.com/aetherlabs/aetherchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "sender:nonce", signedTx, "command", signedTx.Command.Descriptor, "value", signedTx.OutputValue())
	if err := h.State.SubmitWalletTransaction(signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}{
		Status: "transaction added to mempool",
		TxID:   signedTx.TxID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// ChainStatus returns a summary of the node's canonical chain.
func (h Handlers) ChainStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	head := h.State.RetrieveHead()

	status := chainStatus{
		HeadBlockHash:    head.Hash(),
		HeadHeight:       head.Header.Height,
		HeadWeight:       h.State.RetrieveHeadWeight(),
		CurrentTarget:    h.State.QueryCurrentTarget(),
		ObservedInterval: h.State.QueryObservedInterval(),
		Uncommitted:      h.State.QueryMempoolLength(),
		Orphans:          h.State.QueryOrphanCount(),
		Checkpoints:      len(h.State.RetrieveCheckpoints()),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	var trans []tx
	for _, tran := range h.State.RetrieveMempool() {
		if acct != "" && acct != string(tran.SenderID) {
			continue
		}
		trans = append(trans, toTx(tran, h.NS.Lookup))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// BlocksByHeight returns the canonical blocks in the height range. Either
// value may be the word latest.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := parseHeight(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := parseHeight(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByHeight(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = toBlock(blk, h.State.QueryIncentiveForBlock(blk), h.NS.Lookup)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlocksByAccount returns the canonical blocks carrying transactions from
// the account.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocksByAccount(accountID)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = toBlock(blk, h.State.QueryIncentiveForBlock(blk), h.NS.Lookup)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Checkpoints returns the security checkpoint chain.
func (h Handlers) Checkpoints(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveCheckpoints(), http.StatusOK)
}

// Incentive returns the accumulated proposer incentive for an account.
func (h Handlers) Incentive(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Account   database.AccountID `json:"account"`
		Name      string             `json:"name"`
		Incentive uint64             `json:"incentive"`
	}{
		Account:   accountID,
		Name:      h.NS.Lookup(accountID),
		Incentive: h.State.RetrieveIncentive(accountID),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Confirmations returns the number of blocks required on top of a
// transaction for finality against the given hostile compute fraction.
func (h Handlers) Confirmations(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fraction, err := strconv.ParseFloat(web.Param(r, "fraction"), 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid hostile fraction: %w", err), http.StatusBadRequest)
	}
	if fraction < 0 || fraction >= 1 {
		return errs.NewTrusted(fmt.Errorf("hostile fraction must be in [0,1)"), http.StatusBadRequest)
	}

	resp := struct {
		HostileFraction float64 `json:"hostile_fraction"`
		Confirmations   uint    `json:"confirmations"`
	}{
		HostileFraction: fraction,
		Confirmations:   h.State.QueryRequiredConfirmations(fraction),
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
