package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/alagamento-br/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ObjectReader opens stored objects by key.
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// UploadsRouter serves stored incident photos under /uploads/*.
func UploadsRouter(r chi.Router, objects ObjectReader, logger zerolog.Logger) {
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if !storage.ValidKey(key) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		body, err := objects.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			logger.Error().Err(err).Str("key", key).Msg("failed to read upload")
			writeError(w, http.StatusInternalServerError, "failed to read upload")
			return
		}
		defer body.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
	})
}
