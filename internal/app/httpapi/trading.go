package httpapi

import (
	"net/http"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/trading"
	"github.com/gorilla/mux"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in trading.CreateInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	tx, err := s.trading.Create(r.Context(), in)
	s.audit.Record(r.Context(), "transaction.create", "transaction", tx.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := trade.Filter{
		BuyerID: q.Get("userId"),
		AssetID: q.Get("assetId"),
		Type:    trade.Type(q.Get("type")),
		Status:  trade.Status(q.Get("status")),
	}
	paged, err := s.trading.List(r.Context(), f, parsePage(r), parseSort(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, paged)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.trading.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, tx)
}

// advance wires one state-machine step to a route.
func (s *Server) advance(w http.ResponseWriter, r *http.Request, action string, step func(string) (trade.Transaction, error)) {
	id := mux.Vars(r)["id"]
	tx, err := step(id)
	s.audit.Record(r.Context(), action, "transaction", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, tx)
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, "transaction.create-escrow", func(id string) (trade.Transaction, error) {
		return s.trading.CreateEscrow(r.Context(), id)
	})
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PaymentSignature string `json:"paymentSignature"`
	}
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	s.advance(w, r, "transaction.confirm-payment", func(id string) (trade.Transaction, error) {
		return s.trading.RecordPayment(r.Context(), id, in.PaymentSignature)
	})
}

func (s *Server) handleTransferTokens(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, "transaction.transfer-tokens", func(id string) (trade.Transaction, error) {
		return s.trading.TransferTokens(r.Context(), id)
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, "transaction.complete", func(id string) (trade.Transaction, error) {
		return s.trading.Complete(r.Context(), id)
	})
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	// The body is optional for cancellation.
	_ = decodeBody(r, &in)
	s.advance(w, r, "transaction.cancel", func(id string) (trade.Transaction, error) {
		return s.trading.Cancel(r.Context(), id, in.Reason)
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.trading.UserStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}
