package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/events"
)

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req struct {
		Value bool `json:"value"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "fulfillSafePassage", http.StatusOK, func(ctx context.Context) (any, error) {
		return s.p.FulfillSafePassage(ctx, caller(r), tripID, req.Value)
	})
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	value, ok := s.p.Confirmation(tripID)
	if !ok {
		WriteNotFound(w, "no confirmation recorded for "+tripID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip_id": tripID, "value": value})
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"address": s.p.ExternalTarget(),
		"breaker": s.p.Breaker().State(),
	})
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "updateExternalTarget", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.UpdateExternalTarget(ctx, caller(r), req.Address); err != nil {
			return nil, err
		}
		return map[string]string{"address": s.p.ExternalTarget()}, nil
	})
}

func (s *Server) handleAuthorizeFulfiller(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "authorizeFulfiller", http.StatusCreated, func(ctx context.Context) (any, error) {
		if err := s.p.AuthorizeFulfiller(ctx, caller(r), req.Principal); err != nil {
			return nil, err
		}
		return req, nil
	})
}

func (s *Server) handleDeauthorizeFulfiller(w http.ResponseWriter, r *http.Request) {
	p := authority.Principal(chi.URLParam(r, "principal"))
	s.run(w, r, "deauthorizeFulfiller", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.DeauthorizeFulfiller(ctx, caller(r), p); err != nil {
			return nil, err
		}
		return principalRequest{Principal: p}, nil
	})
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CID         string `json:"cid"`
		ContentHash string `json:"content_hash"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "anchorDocument", http.StatusCreated, func(ctx context.Context) (any, error) {
		return s.p.AnchorDocument(ctx, caller(r), req.CID, req.ContentHash)
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	s.run(w, r, "publishDocument", http.StatusCreated, func(ctx context.Context) (any, error) {
		return s.p.PublishDocument(ctx, caller(r), data)
	})
}

func (s *Server) handleLookupAnchor(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	a, err := s.p.LookupAnchor(cid)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	resp := map[string]any{"anchor": a}
	if h := r.URL.Query().Get("hash"); h != "" {
		resp["verified"] = s.p.VerifyAnchor(cid, h)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.p.Invariants(r.Context()))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	entries := s.p.Journal().Entries()
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			WriteBadRequest(w, "after must be a non-negative integer")
			return
		}
		if after > uint64(len(entries)) {
			after = uint64(len(entries))
		}
		entries = entries[after:]
	}
	if entries == nil {
		entries = []events.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"head":    s.p.Journal().Head(),
		"entries": entries,
	})
}

func (s *Server) handleJournalVerify(w http.ResponseWriter, r *http.Request) {
	j := s.p.Journal()
	resp := map[string]any{"length": j.Len(), "head": j.Head(), "valid": true}
	if err := j.Verify(); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
