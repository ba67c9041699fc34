package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/veto"
)

type principalRequest struct {
	Principal authority.Principal `json:"principal"`
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.p.Roles())
}

func (s *Server) handleAddCouncilMember(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "addCouncilMember", http.StatusCreated, func(ctx context.Context) (any, error) {
		if err := s.p.AddCouncilMember(ctx, caller(r), req.Principal); err != nil {
			return nil, err
		}
		return s.p.Roles(), nil
	})
}

func (s *Server) handleRemoveCouncilMember(w http.ResponseWriter, r *http.Request) {
	member := authority.Principal(chi.URLParam(r, "principal"))
	s.run(w, r, "removeCouncilMember", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.RemoveCouncilMember(ctx, caller(r), member); err != nil {
			return nil, err
		}
		return s.p.Roles(), nil
	})
}

func (s *Server) handleSetQuorum(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequiredSignatures uint `json:"required_signatures"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "setRequiredSignatures", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.SetRequiredSignatures(ctx, caller(r), req.RequiredSignatures); err != nil {
			return nil, err
		}
		return s.p.Roles(), nil
	})
}

func (s *Server) handleTransferSoleAuthority(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "transferSoleAuthority", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.TransferSoleAuthority(ctx, caller(r), req.Principal); err != nil {
			return nil, err
		}
		return s.p.Roles(), nil
	})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "transferOwnership", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.TransferOwnership(ctx, caller(r), req.Principal); err != nil {
			return nil, err
		}
		return s.p.Roles(), nil
	})
}

func (s *Server) handleVotingPower(w http.ResponseWriter, r *http.Request) {
	who := authority.Principal(chi.URLParam(r, "principal"))
	score := int64(0)
	if raw := r.URL.Query().Get("score"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, "score must be an integer")
			return
		}
		score = v
	}
	power, err := s.p.VotingPower(r.Context(), who, score)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, power)
}

func (s *Server) handleVetoStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"state":              s.p.VetoState(),
		"operations_allowed": s.p.OperationsAllowed(),
		"records":            s.p.VetoRecords(),
		"open":               nil,
	}
	if rec, ok := s.p.OpenVeto(); ok {
		status["open"] = rec
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVetoRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.p.VetoRecord(id)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInitiateVeto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "initiateVeto", http.StatusCreated, func(ctx context.Context) (any, error) {
		target, err := veto.ParseState(req.Target)
		if err != nil {
			return nil, err
		}
		id, err := s.p.InitiateVeto(ctx, caller(r), target, req.Reason)
		if err != nil {
			return nil, err
		}
		return s.p.VetoRecord(id)
	})
}

func (s *Server) handleResolveVeto(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	s.run(w, r, "resolveVeto", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.ResolveVeto(ctx, caller(r), id); err != nil {
			return nil, err
		}
		return s.p.VetoRecord(id)
	})
}

func (s *Server) handleEmergencyOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "emergencyOverride", http.StatusOK, func(ctx context.Context) (any, error) {
		if err := s.p.EmergencyOverride(ctx, caller(r), req.Reason); err != nil {
			return nil, err
		}
		return map[string]any{"state": s.p.VetoState()}, nil
	})
}
