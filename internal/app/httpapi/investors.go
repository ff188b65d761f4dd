package httpapi

import (
	"net/http"

	"github.com/Clearfield-Labs/asset_layer/internal/app/services/investors"
	"github.com/gorilla/mux"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in investors.CreateUserInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	u, err := s.investors.CreateUser(r.Context(), in)
	s.audit.Record(r.Context(), "user.create", "user", u.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.investors.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in investors.UpdateUserInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	u, err := s.investors.UpdateUser(r.Context(), id, in)
	s.audit.Record(r.Context(), "user.update", "user", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var in investors.ProfileInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	p, err := s.investors.UpsertProfile(r.Context(), id, in)
	s.audit.Record(r.Context(), "user.upsert-profile", "profile", p.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.investors.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (s *Server) handleSyncKYC(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, err := s.investors.SyncKYC(r.Context(), id)
	s.audit.Record(r.Context(), "user.kyc-sync", "user", id, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.investors.GetPortfolio(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (s *Server) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	var in investors.CreateBankInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, err)
		return
	}
	b, err := s.investors.CreateBank(r.Context(), in)
	s.audit.Record(r.Context(), "bank.create", "bank", b.ID, err)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, b)
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := s.investors.ListBanks(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, banks)
}

func (s *Server) handleGetBank(w http.ResponseWriter, r *http.Request) {
	b, err := s.investors.GetBank(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, b)
}
