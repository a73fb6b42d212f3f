package api

import (
	"errors"
	"net/http"

	"fairCaseServer/config"
	"fairCaseServer/db"
	"fairCaseServer/logger"
	"fairCaseServer/state"
)

/* =========================
   REQUEST/RESPONSE TYPES
========================= */

// ClientSeedRequest carries an optional client seed; empty means generate one
type ClientSeedRequest struct {
	ClientSeed string `json:"clientSeed"`
}

// SessionResponse wraps a session snapshot
type SessionResponse struct {
	Success bool           `json:"success"`
	Session state.Snapshot `json:"session"`
}

// PublishResponse returns the published commitment
type PublishResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"sessionId"`
	Commitment string `json:"commitment"`
	ClientSeed string `json:"clientSeed"`
	Nonce      uint64 `json:"nonce"`
}

// CachedSessionResponse wraps the last snapshot cached in Redis for a session
// this process does not hold
type CachedSessionResponse struct {
	Success bool                `json:"success"`
	Cached  bool                `json:"cached"`
	Session *db.SessionSnapshot `json:"session"`
}

// OpenCaseResponse returns a resolved round
type OpenCaseResponse struct {
	Success bool               `json:"success"`
	Round   *state.RoundResult `json:"round"`
}

// RevealResponse returns the revealed server seed
type RevealResponse struct {
	Success bool             `json:"success"`
	Reveal  *db.RevealRecord `json:"reveal"`
}

/* =========================
   SESSION ENDPOINTS
========================= */

// HandleCreateSession creates a session
// POST /api/session
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req ClientSeedRequest
	if err := decodeBody(w, r, config.MaxVerifyBodyBytes, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.Sessions.Create(req.ClientSeed)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	logger.Info("🆕 Session created", "session", session.ID)
	sendJSONStatus(w, http.StatusCreated, SessionResponse{Success: true, Session: session.Snapshot()})
}

// HandleGetSession returns the public snapshot of a session, falling back to
// the Redis cache for sessions this process does not hold
// GET /api/session/{id}
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.Sessions.Get(id)
	if errors.Is(err, state.ErrSessionNotFound) && s.Board != nil {
		snap, cacheErr := s.Board.GetSnapshot(r.Context(), id)
		if cacheErr != nil {
			logger.Warn("⚠️  Failed to read cached snapshot", "session", id, logger.Err(cacheErr))
		}
		if snap != nil {
			sendJSON(w, CachedSessionResponse{Success: true, Cached: true, Session: snap})
			return
		}
	}
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSON(w, SessionResponse{Success: true, Session: session.Snapshot()})
}

// HandleSetClientSeed rotates the client seed
// POST /api/session/{id}/client-seed
func (s *Server) HandleSetClientSeed(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Get(r.PathValue("id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}

	var req ClientSeedRequest
	if err := decodeBody(w, r, config.MaxVerifyBodyBytes, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := session.SetClientSeed(req.ClientSeed); err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSON(w, SessionResponse{Success: true, Session: session.Snapshot()})
}

// HandlePublish commits to a fresh server seed
// POST /api/session/{id}/publish
func (s *Server) HandlePublish(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Get(r.PathValue("id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}

	ev, err := session.Publish(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, PublishResponse{
		Success:    true,
		SessionID:  ev.SessionID,
		Commitment: ev.Commitment,
		ClientSeed: ev.ClientSeed,
		Nonce:      ev.Nonce,
	})
}

// HandleOpenCase opens one case under the current nonce
// POST /api/session/{id}/open
func (s *Server) HandleOpenCase(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Get(r.PathValue("id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}

	res, err := session.OpenRound(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSON(w, OpenCaseResponse{Success: true, Round: res})
}

// HandleReveal discloses the server seed and retires the commitment
// POST /api/session/{id}/reveal
func (s *Server) HandleReveal(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Get(r.PathValue("id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}

	rec, err := session.Reveal(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSON(w, RevealResponse{Success: true, Reveal: rec})
}
