package api

import (
	"errors"
	"net/http"

	"barcode-server/internal/storage"

	"github.com/go-chi/chi/v5"
)

// ServeUploadHandler streams a stored barcode image by its generated name.
func (s *Server) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	file, info, err := s.storage.Get(name)
	if err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.log.Errorw("failed to open upload", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer file.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
