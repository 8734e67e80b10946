package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// Response is the body of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSONResponse encodes data with the given status.
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}

// WriteErrorResponse writes a failed Response whose message is localized for the request.
func (s *Server) WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, code, messageKey string) {
	if statusCode == http.StatusUnauthorized {
		w.Header().Set(config.HeaderWWWAuth, config.BearerRealm)
	}
	WriteJSONResponse(w, Response{
		Success: false,
		Code:    code,
		Message: s.localize(r, messageKey, nil),
	}, statusCode)
}

func (s *Server) localize(r *http.Request, key string, data map[string]any) string {
	if s.Localizer == nil {
		return key
	}
	return s.Localizer.Get(s.Localizer.Match(r.Header.Get(config.HeaderAcceptLanguage)), key, data)
}
