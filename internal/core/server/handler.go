package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/solatis/stagedoor/internal/core/api"
	"github.com/solatis/stagedoor/internal/core/config"
	"go.uber.org/zap"
)

// maxBodyBytes caps contact form payloads. Generous for free-text ideas,
// small enough to shrug off junk uploads.
const maxBodyBytes = 64 << 10

// contactService is the part of api.RelayService the handler needs.
type contactService interface {
	SubmitContact(ctx context.Context, clientKey string, req api.ContactRequest) api.Result
}

// ContactHandler serves the contact form endpoint, including the CORS
// preflight the browser sends before the cross-origin POST.
type ContactHandler struct {
	cfg *config.RelayConfig
	svc contactService
	log *zap.Logger
}

// NewContactHandler creates the handler for /api/contact.
func NewContactHandler(cfg *config.RelayConfig, svc contactService, log *zap.Logger) *ContactHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactHandler{cfg: cfg, svc: svc, log: log}
}

func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", h.cfg.AllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, api.ContactResponse{Error: "Method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req api.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("rejecting unparseable request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, api.ContactResponse{Error: "Invalid request body"})
		return
	}

	result := h.svc.SubmitContact(r.Context(), clientKey(r), req)
	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())))
	}
	writeJSON(w, result.Status, result.Body)
}

func writeJSON(w http.ResponseWriter, status int, body api.ContactResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// clientKey identifies the visitor for rate limiting. Behind a proxy the
// first X-Forwarded-For entry is the original client.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
