package api

import (
	"net/http"
	"strconv"

	"fairCaseServer/config"
	"fairCaseServer/db"
	"fairCaseServer/logger"
)

// RoundsResponse is the audit view of one commitment
type RoundsResponse struct {
	Success      bool                 `json:"success"`
	Commitment   string               `json:"commitment"`
	Published    *db.CommitmentRecord `json:"published,omitempty"`
	Rounds       []db.RoundRecord     `json:"rounds"`
	Anchor       *AnchorStatus        `json:"anchor,omitempty"`
	Reveal       *db.RevealRecord     `json:"reveal,omitempty"`
	Verification *VerifyResponse      `json:"verification,omitempty"`
}

// AnchorStatus is the on-chain record of a commitment
type AnchorStatus struct {
	TxHash    string `json:"txHash"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`
}

/* =========================
   ROUND HISTORY ENDPOINT
========================= */

// HandleGetRounds returns the logged rounds for a commitment. Once the seed
// is revealed the rounds are verified in place.
// GET /api/rounds/{commitment}?limit=100
func (s *Server) HandleGetRounds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	commitment := r.PathValue("commitment")

	limit := config.MaxRoundHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, config.MaxRoundHistory)
	}

	rounds, err := s.RoundLog.Rounds(ctx, commitment, limit)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	resp := RoundsResponse{
		Success:    true,
		Commitment: commitment,
		Rounds:     rounds,
	}

	if s.Board != nil {
		rec, err := s.Board.GetCommitment(ctx, commitment)
		if err != nil {
			logger.Warn("⚠️  Failed to read commitment board", "commitment", commitment, logger.Err(err))
		}
		resp.Published = rec
	}

	if s.Anchor != nil {
		if hash, ok := s.Anchor.TxHash(commitment); ok {
			status := &AnchorStatus{TxHash: hash.Hex(), Confirmed: true}
			if err := s.Anchor.VerifyAnchored(ctx, hash, commitment); err != nil {
				status.Confirmed = false
				status.Error = err.Error()
			}
			resp.Anchor = status
		}
	}

	if resp.Published == nil && resp.Anchor == nil && len(rounds) == 0 {
		sendError(w, http.StatusNotFound, "Unknown commitment")
		return
	}

	transcript, err := db.Transcript(ctx, s.RoundLog, commitment, limit)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	if transcript != nil {
		reveal, err := s.RoundLog.Reveal(ctx, commitment)
		if err != nil {
			sendDomainError(w, err)
			return
		}
		verification := verifyResponse(*transcript)
		resp.Reveal = reveal
		resp.Verification = &verification
	}

	sendJSON(w, resp)
}
