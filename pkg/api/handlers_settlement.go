package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
)

// commitmentInput names a commitment either as 0x-hex or as milestone text.
type commitmentInput struct {
	Commitment string `json:"commitment,omitempty"`
	Milestone  string `json:"milestone,omitempty"`
}

func (c commitmentInput) hash() (tranche.Hash, error) {
	switch {
	case c.Commitment != "" && c.Milestone != "":
		return tranche.Hash{}, faults.New(faults.CodeInvalidCommitment, "give commitment or milestone, not both")
	case c.Milestone != "":
		return tranche.Commit(c.Milestone), nil
	default:
		return tranche.ParseHash(c.Commitment)
	}
}

func (s *Server) handleListTranches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    s.p.TrancheCount(),
		"tranches": s.p.Tranches(),
	})
}

func (s *Server) handleGetTranche(w http.ResponseWriter, r *http.Request) {
	i, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	t, err := s.p.Tranche(i)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTranche(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
		commitmentInput
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "createTranche", http.StatusCreated, func(ctx context.Context) (any, error) {
		h, err := req.hash()
		if err != nil {
			return nil, err
		}
		return s.p.CreateTranche(ctx, caller(r), req.Amount, h)
	})
}

func (s *Server) handleCreateTranches(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amounts     []int64           `json:"amounts"`
		Commitments []commitmentInput `json:"commitments"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "createTranches", http.StatusCreated, func(ctx context.Context) (any, error) {
		hashes := make([]tranche.Hash, 0, len(req.Commitments))
		for _, c := range req.Commitments {
			h, err := c.hash()
			if err != nil {
				return nil, err
			}
			hashes = append(hashes, h)
		}
		return s.p.CreateTranches(ctx, caller(r), req.Amounts, hashes)
	})
}

func (s *Server) handleVerifyTranche(w http.ResponseWriter, r *http.Request) {
	i, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	var req struct {
		Compliant bool `json:"compliant"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "verifyEthicalCompliance", http.StatusOK, func(ctx context.Context) (any, error) {
		return s.p.VerifyEthicalCompliance(ctx, caller(r), i, req.Compliant)
	})
}

func (s *Server) handleVetoTranche(w http.ResponseWriter, r *http.Request) {
	i, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	s.run(w, r, "vetoTranche", http.StatusOK, func(ctx context.Context) (any, error) {
		return s.p.VetoTranche(ctx, caller(r), i)
	})
}

func (s *Server) handleReleaseTranche(w http.ResponseWriter, r *http.Request) {
	i, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	var req struct {
		Proof     string `json:"proof,omitempty"`
		Milestone string `json:"milestone,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "releaseTranche", http.StatusOK, func(ctx context.Context) (any, error) {
		proof, err := commitmentInput{Commitment: req.Proof, Milestone: req.Milestone}.hash()
		if err != nil {
			return nil, err
		}
		return s.p.ReleaseTranche(ctx, caller(r), i, proof)
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   int64    `json:"amount"`
		Duration duration `json:"duration"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.run(w, r, "deposit", http.StatusCreated, func(ctx context.Context) (any, error) {
		return s.p.Deposit(ctx, caller(r), req.Amount, time.Duration(req.Duration))
	})
}

func (s *Server) handleGetInvestment(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := s.p.Investment(id)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	s.run(w, r, "redeem", http.StatusOK, func(ctx context.Context) (any, error) {
		return s.p.Redeem(ctx, caller(r), id)
	})
}
