package httpapi

import "net/http"

func (s *Service) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": s.sessionID,
		"status":     s.sessions.Status(s.sessionID),
	})
}
