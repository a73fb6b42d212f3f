package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fairCaseServer/db"
	"fairCaseServer/game"
	"fairCaseServer/logger"
	"fairCaseServer/state"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// CommitmentBoard is the read side of the Redis commitment board
type CommitmentBoard interface {
	GetCommitment(ctx context.Context, commitment string) (*db.CommitmentRecord, error)
	GetSnapshot(ctx context.Context, sessionID string) (*db.SessionSnapshot, error)
}

// AnchorVerifier finds and checks the on-chain anchor of a commitment
type AnchorVerifier interface {
	TxHash(commitment string) (common.Hash, bool)
	VerifyAnchored(ctx context.Context, txHash common.Hash, commitment string) error
}

// Server holds the collaborators of the HTTP handlers
type Server struct {
	Sessions *state.Registry
	RoundLog db.RoundLog

	// Board is optional; nil when Redis is not configured
	Board CommitmentBoard

	// Anchor is optional; nil when no chain is configured
	Anchor AnchorVerifier

	// HealthChecks are named dependency probes reported by /api/health
	HealthChecks map[string]HealthCheck
}

// Routes registers every endpoint on mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", corsMiddleware(s.HandleCreateSession))
	mux.HandleFunc("GET /api/session/{id}", corsMiddleware(s.HandleGetSession))
	mux.HandleFunc("POST /api/session/{id}/client-seed", corsMiddleware(s.HandleSetClientSeed))
	mux.HandleFunc("POST /api/session/{id}/publish", corsMiddleware(s.HandlePublish))
	mux.HandleFunc("POST /api/session/{id}/open", corsMiddleware(s.HandleOpenCase))
	mux.HandleFunc("POST /api/session/{id}/reveal", corsMiddleware(s.HandleReveal))
	mux.HandleFunc("POST /api/verify", corsMiddleware(s.HandleVerify))
	mux.HandleFunc("GET /api/rounds/{commitment}", corsMiddleware(s.HandleGetRounds))
	mux.HandleFunc("GET /api/health", corsMiddleware(s.HandleHealthCheck))
	mux.HandleFunc("OPTIONS /api/", corsMiddleware(func(w http.ResponseWriter, r *http.Request) {}))
}

/* =========================
   HELPER FUNCTIONS
========================= */

// corsMiddleware adds CORS headers to allow frontend requests
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// sendJSON writes a 200 JSON response
func sendJSON(w http.ResponseWriter, response any) {
	sendJSONStatus(w, http.StatusOK, response)
}

func sendJSONStatus(w http.ResponseWriter, statusCode int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Warn("❌ Failed to encode response", logger.Err(err))
	}
}

// sendError sends an error response
func sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   message,
	})
}

// sendDomainError maps protocol errors onto HTTP status codes
func sendDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrPreconditionViolated):
		status = http.StatusConflict
	case errors.Is(err, state.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, db.ErrCommitmentExists):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger.Error("❌ Request failed", logger.Err(err))
	}
	sendError(w, status, err.Error())
}

// decodeBody decodes an optional JSON body; an empty body is not an error
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
