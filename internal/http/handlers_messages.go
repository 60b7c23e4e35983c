package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PedroDircksen/Lighthouse/internal/dispatch"
)

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type bulkSendRequest struct {
	Phones  []string `json:"phones"`
	Message string   `json:"message"`
}

type bulkSendResponse struct {
	Results []dispatch.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phone and message are required"})
		return
	}
	if err := s.dispatcher.SendText(r.Context(), req.Phone, req.Message); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "sent"})
}

func (s *Service) handleBulkSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}
	if len(req.Phones) == 0 || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phones and message are required"})
		return
	}
	s.respondBulk(w, r, req.Phones, req.Message)
}

type sheetSendRequest struct {
	Range   string `json:"range"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// handleSheetSend pulls destinations out of one spreadsheet column and
// bulk-sends to them.
func (s *Service) handleSheetSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sheets == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "spreadsheet import not configured"})
		return
	}
	var req sheetSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}
	if req.Range == "" || req.Column == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "range, column and message are required"})
		return
	}
	rows, err := s.sheets.FetchAll(r.Context(), req.Range)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	var phones []string
	for _, row := range rows {
		if phone := strings.TrimSpace(row[req.Column]); phone != "" {
			phones = append(phones, phone)
		}
	}
	if len(phones) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no destinations found in column " + req.Column})
		return
	}
	s.respondBulk(w, r, phones, req.Message)
}

func (s *Service) respondBulk(w http.ResponseWriter, r *http.Request, phones []string, message string) {
	results := s.dispatcher.Bulk(r.Context(), phones, message)
	status := http.StatusInternalServerError
	for _, res := range results {
		if res.OK {
			status = http.StatusOK
			break
		}
	}
	writeJSON(w, status, bulkSendResponse{Results: results})
}
