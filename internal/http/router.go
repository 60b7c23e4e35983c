package httpapi

import (
	"net/http"
)

func NewRouter(svc *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message/send", svc.handleSend)
	mux.HandleFunc("/api/message/bulk-send", svc.handleBulkSend)
	mux.HandleFunc("/api/message/sheet-send", svc.handleSheetSend)
	mux.HandleFunc("/api/session/status", svc.handleSessionStatus)
	return mux
}
