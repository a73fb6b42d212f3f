package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"fairCaseServer/config"
	"fairCaseServer/game"

	"gopkg.in/yaml.v3"
)

// VerifyResponse reports the verification verdict. A mismatch is a valid
// answer, not a request failure.
type VerifyResponse struct {
	Success bool         `json:"success"`
	Valid   bool         `json:"valid"`
	Report  *game.Report `json:"report"`
	Error   string       `json:"error,omitempty"`
}

/* =========================
   VERIFICATION ENDPOINT
========================= */

// HandleVerify recomputes a revealed transcript. Accepts JSON, or YAML when
// the content type says so.
// POST /api/verify
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxVerifyBodyBytes))
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var t game.Transcript
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		err = yaml.Unmarshal(body, &t)
	} else {
		err = json.Unmarshal(body, &t)
	}
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid transcript")
		return
	}

	if t.ServerSeed == "" || t.Commitment == "" {
		sendError(w, http.StatusBadRequest, "serverSeed and commitment are required")
		return
	}

	sendJSON(w, verifyResponse(t))
}

func verifyResponse(t game.Transcript) VerifyResponse {
	report, err := game.Verify(t)
	resp := VerifyResponse{
		Success: true,
		Valid:   err == nil,
		Report:  report,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
