package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payrecord/internal/log"
	"payrecord/internal/services"
)

type merchantRequest struct {
	Name string  `json:"name"`
	Icon *string `json:"icon"`
}

func (s *Server) handleListMerchants(w http.ResponseWriter, r *http.Request) {
	merchants, err := s.deps.Merchants.List(r.Context(), caller(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, merchants)
}

func (s *Server) handleSaveMerchant(w http.ResponseWriter, r *http.Request) {
	var req merchantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}

	m, err := s.deps.Merchants.Save(r.Context(), caller(r), sanitizeInput(req.Name), req.Icon, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMerchant(w http.ResponseWriter, r *http.Request) {
	name := sanitizeInput(r.URL.Query().Get("name"))
	if err := s.deps.Merchants.Delete(r.Context(), caller(r), name, s.origin(r)); err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.Icons.MaxBytes()+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, r, services.ErrUploadTooLarge, log.OpUpload)
			return
		}
		BadRequestError("No file uploaded").Write(w)
		return
	}
	defer file.Close()

	url, err := s.deps.Icons.Store(r.Context(), header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err, log.OpUpload)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleServeIcon(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Icons.Path(chi.URLParam(r, "filename"))
	if err != nil {
		writeServiceError(w, r, err, log.OpRead)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
