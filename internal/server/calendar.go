package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// handleCalendar serves the tenant's feed with ETag caching.
// The language comes from the "lang" query parameter, else from Accept-Language, else FeedLanguage.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !s.requireCaller(w, r) {
		return
	}

	records, err := s.Records.ListByTenant(r.Context(), chi.URLParam(r, config.URLParamTenant))
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	lang := r.URL.Query().Get(config.QueryParamLang)
	if lang == "" {
		lang = r.Header.Get(config.HeaderAcceptLanguage)
	}
	if lang == "" {
		lang = s.FeedLanguage
	}
	if s.Localizer != nil {
		lang = s.Localizer.Match(lang)
	}

	data, err := s.Feed.Render(records, lang)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, etag)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}
