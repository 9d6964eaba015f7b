package api

import "net/http"

func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", h.Evaluate)
	mux.HandleFunc("POST /v1/remediate", h.Remediate)
	mux.HandleFunc("POST /v1/overrides", h.Overrides)
	mux.HandleFunc("GET /v1/events", h.Events)
	mux.HandleFunc("GET /v1/integrity", h.Integrity)
	mux.HandleFunc("GET /v1/checkpoint", h.Checkpoint)
	mux.HandleFunc("GET /v1/rules", h.Rules)
	return mux
}
