package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/punchamoorthee/decoledger/internal/domain"
	"github.com/punchamoorthee/decoledger/internal/host"
	"github.com/punchamoorthee/decoledger/internal/models"
	"github.com/punchamoorthee/decoledger/internal/service"
)

// callTarget resolves the call environment and the {ledger} path variable of
// a mutating request.
func callTarget(r *http.Request) (host.Env, domain.AccountID, error) {
	env, err := host.EnvFrom(r.Context())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		return nil, "", err
	}
	return env, ledger, nil
}

// Service request ledger

func (h *Handler) InitServiceLedgerHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.InitServiceLedgerRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	state, err := h.requests.Init(r.Context(), env, ledger, req.Owner, req.MinFee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, state)
}

func (h *Handler) RequestDocumentGenerationHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.DocumentGenerationRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	stored, err := h.requests.RequestDocumentGeneration(r.Context(), env, ledger, req.RepoURL, req.SelectedAreas)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, stored)
}

func (h *Handler) WithdrawFeesHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.WithdrawFeesRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.requests.OwnerWithdrawFees(r.Context(), env, ledger, req.Amount, req.To); err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.requests.Stats(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *Handler) SetFeeHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.SetFeeRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.requests.OwnerSetServiceFee(r.Context(), env, ledger, req.Fee); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.FeeResponse{Fee: req.Fee})
}

func (h *Handler) GetFeeHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fee, err := h.requests.Fee(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.FeeResponse{Fee: fee})
}

func (h *Handler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.requests.Stats(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	repoURL := r.URL.Query().Get("repo_url")
	if repoURL == "" {
		h.fail(w, r, fmt.Errorf("%w: repo_url is required", domain.ErrInvalidRequest))
		return
	}

	stored, err := h.requests.RequestByRepoURL(r.Context(), ledger, repoURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stored == nil {
		respondWithError(w, http.StatusNotFound, "Request not found")
		return
	}
	respondWithJSON(w, http.StatusOK, stored)
}

// Token and membership ledger

func (h *Handler) InitTokenLedgerHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.InitTokenLedgerRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	state, err := h.tokens.Init(r.Context(), env, ledger, service.TokenConfig{
		Owner:         req.Owner,
		Name:          req.Name,
		Symbol:        req.Symbol,
		Decimals:      req.Decimals,
		ServiceLedger: req.ServiceLedger,
		Minter:        req.Minter,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, state)
}

func (h *Handler) MintHandler(w http.ResponseWriter, r *http.Request) {
	h.changeSupply(w, r, h.tokens.Mint)
}

func (h *Handler) BurnHandler(w http.ResponseWriter, r *http.Request) {
	h.changeSupply(w, r, h.tokens.Burn)
}

type supplyCall func(ctx context.Context, env host.Env, ledger, account domain.AccountID, amount domain.Amount) error

// changeSupply runs mint or burn and answers with the account's new balance.
func (h *Handler) changeSupply(w http.ResponseWriter, r *http.Request, call supplyCall) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.TokenAmountRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := call(r.Context(), env, ledger, req.Account, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.tokens.BalanceOf(r.Context(), ledger, req.Account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.BalanceResponse{Account: req.Account, Balance: balance})
}

func (h *Handler) AddMemberHandler(w http.ResponseWriter, r *http.Request) {
	h.setMember(w, r, true)
}

func (h *Handler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	h.setMember(w, r, false)
}

func (h *Handler) setMember(w http.ResponseWriter, r *http.Request, active bool) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := ledgerVar(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if active {
		err = h.tokens.AddActiveMember(r.Context(), env, ledger, account)
	} else {
		err = h.tokens.RemoveActiveMember(r.Context(), env, ledger, account)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.MembershipResponse{Account: account, Active: active})
}

func (h *Handler) SetValuesHashHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.ValuesHashRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.tokens.SetValuesCSVHash(r.Context(), env, ledger, req.Hash); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ValuesHashResponse{Hash: &req.Hash})
}

func (h *Handler) SetMinterHandler(w http.ResponseWriter, r *http.Request) {
	env, ledger, err := callTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.MinterRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.tokens.SetMinter(r.Context(), env, ledger, req.Minter); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

func (h *Handler) GetSupplyHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	supply, err := h.tokens.TotalSupply(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.SupplyResponse{TotalSupply: supply})
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := ledgerVar(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.tokens.BalanceOf(r.Context(), ledger, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.BalanceResponse{Account: account, Balance: balance})
}

func (h *Handler) GetOwnerHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	owner, err := h.tokens.Owner(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.OwnerResponse{Owner: owner})
}

func (h *Handler) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	members, err := h.tokens.ActiveMembers(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.MembersResponse{Members: members})
}

func (h *Handler) GetMemberHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := ledgerVar(r, "account")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active, err := h.tokens.IsActiveMember(r.Context(), ledger, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.MembershipResponse{Account: account, Active: active})
}

func (h *Handler) GetValuesHashHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hash, err := h.tokens.ValuesHash(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ValuesHashResponse{Hash: hash})
}

func (h *Handler) GetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meta, err := h.tokens.Metadata(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, meta)
}

func (h *Handler) ListHoldersHandler(w http.ResponseWriter, r *http.Request) {
	ledger, err := ledgerVar(r, "ledger")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	holders, err := h.tokens.Holders(r.Context(), ledger)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.HoldersResponse{Holders: holders})
}

// Event stream

func (h *Handler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ledger, err := domain.ParseAccountID(q.Get("ledger"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: ledger: %w", errBadRequest, err))
		return
	}

	var after uint64
	if s := q.Get("after"); s != "" {
		if after, err = strconv.ParseUint(s, 10, 64); err != nil {
			h.fail(w, r, fmt.Errorf("%w: after must be an unsigned integer", errBadRequest))
			return
		}
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			h.fail(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
	}

	evs, err := h.store.Events(r.Context(), ledger, after, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	respondWithJSON(w, http.StatusOK, models.EventPage{Ledger: ledger, Events: evs, Next: next})
}
