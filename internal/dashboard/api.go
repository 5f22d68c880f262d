package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/reqboard/reqboard/internal/engine"
	"github.com/reqboard/reqboard/internal/request"
)

// DataResponse is the body of GET /api/data
type DataResponse struct {
	Timestamp string            `json:"timestamp"`
	Requests  []request.Request `json:"requests"`
}

// DoneRequest is the body of POST /api/done
type DoneRequest struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	requests := s.board.Snapshot()
	if requests == nil {
		requests = []request.Request{}
	}
	writeJSON(w, http.StatusOK, DataResponse{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Requests:  requests,
	})
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	var body DoneRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	err := s.board.MarkDone(r.Context(), body.ID)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	case err != nil:
		s.logger.Printf("Failed to mark %s done: %v", body.ID, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"clients":  s.ClientCount(),
		"requests": len(s.board.Snapshot()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
