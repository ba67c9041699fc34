package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/covenant/pkg/auth"
	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/observability"
	"github.com/Mindburn-Labs/covenant/pkg/protocol"
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Validator   *auth.JWTValidator
	RateLimiter *RateLimiter
	Telemetry   *observability.Provider
	Logger      *slog.Logger
}

// Server exposes one protocol instance over HTTP.
type Server struct {
	p         *protocol.Protocol
	validator *auth.JWTValidator
	limiter   *RateLimiter
	telemetry *observability.Provider
	logger    *slog.Logger
}

// NewServer builds a server. A nil Telemetry disables tracing.
func NewServer(p *protocol.Protocol, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "api")
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		var err error
		telemetry, err = observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
	}
	return &Server{
		p:         p,
		validator: opts.Validator,
		limiter:   opts.RateLimiter,
		telemetry: telemetry,
		logger:    logger,
	}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(s.logger))
	r.Use(Authenticate(s.validator))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteMethodNotAllowed(w)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/readiness", s.handleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/whoami", s.handleWhoAmI)

		r.Get("/roles", s.handleRoles)
		r.Post("/council", s.handleAddCouncilMember)
		r.Delete("/council/{principal}", s.handleRemoveCouncilMember)
		r.Get("/voting-power/{principal}", s.handleVotingPower)
		r.Put("/quorum", s.handleSetQuorum)
		r.Put("/authority/sole", s.handleTransferSoleAuthority)
		r.Put("/authority/owner", s.handleTransferOwnership)

		r.Get("/veto", s.handleVetoStatus)
		r.Post("/veto", s.handleInitiateVeto)
		r.Post("/veto/override", s.handleEmergencyOverride)
		r.Get("/veto/{id}", s.handleVetoRecord)
		r.Post("/veto/{id}/resolve", s.handleResolveVeto)

		r.Get("/tranches", s.handleListTranches)
		r.Post("/tranches", s.handleCreateTranche)
		r.Post("/tranches/batch", s.handleCreateTranches)
		r.Get("/tranches/{index}", s.handleGetTranche)
		r.Post("/tranches/{index}/verify", s.handleVerifyTranche)
		r.Post("/tranches/{index}/veto", s.handleVetoTranche)
		r.Post("/tranches/{index}/release", s.handleReleaseTranche)

		r.Post("/bonds", s.handleDeposit)
		r.Get("/bonds/{id}", s.handleGetInvestment)
		r.Post("/bonds/{id}/redeem", s.handleRedeem)

		r.Post("/oracle/trips/{tripID}", s.handleFulfill)
		r.Get("/oracle/trips/{tripID}", s.handleConfirmation)
		r.Get("/oracle/target", s.handleGetTarget)
		r.Put("/oracle/target", s.handleUpdateTarget)
		r.Post("/oracle/fulfillers", s.handleAuthorizeFulfiller)
		r.Delete("/oracle/fulfillers/{principal}", s.handleDeauthorizeFulfiller)

		r.Post("/anchors", s.handleAnchor)
		r.Post("/anchors/documents", s.handlePublish)
		r.Get("/anchors/{cid}", s.handleLookupAnchor)

		r.Get("/invariants", s.handleInvariants)
		r.Get("/journal", s.handleJournal)
		r.Get("/journal/verify", s.handleJournalVerify)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.p.Journal().Verify(); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", "journal integrity check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"veto_state":      s.p.VetoState(),
		"breaker":         s.p.Breaker().State(),
		"journal_pending": s.p.Journal().Pending(),
	})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"principal": caller(r)})
}

// track wraps one protocol operation in a span and RED metrics.
func (s *Server) track(r *http.Request, op string) (context.Context, func(error)) {
	return s.telemetry.TrackOperation(r.Context(), op, observability.OperationAttributes(op, string(caller(r)))...)
}

// run executes a mutating operation and writes either its result or the fault.
func (s *Server) run(w http.ResponseWriter, r *http.Request, op string, status int, fn func(ctx context.Context) (any, error)) {
	ctx, finish := s.track(r, op)
	out, err := fn(ctx)
	finish(err)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

func caller(r *http.Request) authority.Principal {
	p, _ := auth.GetPrincipal(r.Context())
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, "request body too large or unreadable")
		return nil, false
	}
	return data, true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("%s must be a non-negative integer", name))
		return 0, false
	}
	return v, true
}

// duration accepts a Go duration string ("720h") or whole seconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(parsed)
		return nil
	}
	var secs int64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or integer seconds")
	}
	*d = duration(time.Duration(secs) * time.Second)
	return nil
}
