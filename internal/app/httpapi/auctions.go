package httpapi

import (
	"net/http"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/services/auctions"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in auctions.CreateInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	a, err := s.auctions.Create(r.Context(), in)
	s.audit.Record(r.Context(), "auction.create", "auction", a.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := auction.Filter{
		AssetID: q.Get("assetId"),
		Status:  auction.Status(q.Get("status")),
	}
	if v, err := decimal.NewFromString(q.Get("minReserve")); err == nil {
		f.MinReserve = &v
	}
	if v, err := decimal.NewFromString(q.Get("maxReserve")); err == nil {
		f.MaxReserve = &v
	}
	paged, err := s.auctions.List(r.Context(), f, parsePage(r), parseSort(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, paged)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.auctions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

// bidderWallet resolves the wallet placing or cancelling a bid: the explicit
// body value wins, otherwise the acting user's wallet.
func (s *Server) bidderWallet(r *http.Request, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		return "", errors.Unauthorized("Acting user required to bid")
	}
	u, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		return "", errors.Unauthorized("Unknown acting user")
	}
	if u.WalletAddress == "" {
		return "", errors.InvalidInput("NO_WALLET", "Acting user has no wallet address")
	}
	return u.WalletAddress, nil
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BidderWallet string          `json:"bidderWallet"`
		Amount       decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	wallet, err := s.bidderWallet(r, in.BidderWallet)
	if err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	bid, err := s.auctions.PlaceBid(r.Context(), id, wallet, in.Amount)
	s.audit.Record(r.Context(), "auction.bid", "auction", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, bid)
}

func (s *Server) handleBidHistory(w http.ResponseWriter, r *http.Request) {
	paged, err := s.auctions.BidHistory(r.Context(), mux.Vars(r)["id"], parsePage(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, paged)
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.bidderWallet(r, r.URL.Query().Get("wallet"))
	if err != nil {
		respondError(w, err)
		return
	}
	vars := mux.Vars(r)
	err = s.auctions.CancelBid(r.Context(), vars["bidId"], wallet)
	s.audit.Record(r.Context(), "auction.cancel-bid", "bid", vars["bidId"], err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"id": vars["bidId"]})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.auctions.Settle(r.Context(), id)
	s.audit.Record(r.Context(), "auction.settle", "auction", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.auctions.Cancel(r.Context(), id)
	s.audit.Record(r.Context(), "auction.cancel", "auction", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, assetManagerRoles...); err != nil {
		respondError(w, err)
		return
	}
	var in struct {
		NewEndTime time.Time `json:"newEndTime"`
	}
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	a, err := s.auctions.Extend(r.Context(), id, in.NewEndTime)
	s.audit.Record(r.Context(), "auction.extend", "auction", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const streamWriteTimeout = 10 * time.Second

// handleStream upgrades to a WebSocket and relays the auction's events until
// the client disconnects or falls too far behind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.auctions.Get(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.auctions.Events().Subscribe(id)
	defer cancel()

	// Reader goroutine notices client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
