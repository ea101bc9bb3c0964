package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/annotation"
	"github.com/hyperjump/pdfmark/internal/geometry"
	"github.com/hyperjump/pdfmark/internal/identity"
	"github.com/hyperjump/pdfmark/internal/library"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/pdfinfo"
	"github.com/hyperjump/pdfmark/internal/render"
	"github.com/hyperjump/pdfmark/internal/storage"
)

const maxUploadBytes = 64 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.library.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents": docCount,
	}
	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"storage_driver": s.config.Storage.Driver,
			"database_path":  s.config.Storage.DatabasePath,
			"blob_root":      s.config.Storage.BlobRoot,
			"auth_mode":      s.config.Auth.Mode,
			"min_zoom":       s.config.Session.MinZoom,
			"max_zoom":       s.config.Session.MaxZoom,
			"inbox":          s.config.Watch.Inbox,
		}
		diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BlobRoot)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	docs, err := s.library.List(r.Context(), id)
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	s.logger.Debug("upload request", zap.String("name", header.Filename), zap.Int("bytes", len(content)))
	doc, err := s.library.Upload(r.Context(), owner, header.Filename, content)
	if err != nil {
		if errors.Is(err, pdfinfo.ErrNotPDF) {
			s.respondError(w, http.StatusBadRequest, "please select a valid PDF file")
			return
		}
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	doc, err := s.library.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	res, err := s.library.Delete(r.Context(), owner, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	resp := map[string]string{"status": "deleted"}
	if res.StorageErr != nil {
		resp["storage_error"] = res.StorageErr.Error()
	}
	if f, ok := s.raster.(interface{ Forget(ref string) }); ok {
		f.Forget(res.Document.StoragePath)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	doc, content, err := s.library.Download(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(doc.OriginalName))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}

func (s *Server) handlePublicFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.library.PublicFile(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(content)
}

func (s *Server) handleSaveAnnotations(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	var m models.AnnotationMap
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateAnnotations(m, s.minExtent()); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.library.SaveAnnotations(r.Context(), owner, id, m); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "saved", "annotations": m.Count()})
}

// minExtent is the smallest width and height a stored annotation may have.
func (s *Server) minExtent() float64 {
	if s.config != nil && s.config.Session.MinExtent > 0 {
		return s.config.Session.MinExtent
	}
	return geometry.MinExtent
}

// validateAnnotations rejects maps the drawing path could never produce: bad pages,
// unknown kinds and rectangles below minExtent in either direction.
func validateAnnotations(m models.AnnotationMap, minExtent float64) error {
	for page, list := range m {
		if page < 1 {
			return fmt.Errorf("invalid page %d", page)
		}
		for i, a := range list {
			if _, err := models.ParseKind(string(a.Kind)); err != nil {
				return fmt.Errorf("page %d annotation %d: %w", page, i, err)
			}
			if a.Width < minExtent || a.Height < minExtent {
				return fmt.Errorf("page %d annotation %d: %vx%v is below the minimum size of %v", page, i, a.Width, a.Height, minExtent)
			}
		}
	}
	return nil
}

func (s *Server) handleExportAnnotations(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	bundle, err := s.library.Export(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment(library.ExportFileName(bundle.PdfName)))
	_, _ = w.Write(data)
}

// handleOverlay renders a page's committed annotations as a transparent PNG sized to
// the page at ?scale= (default 1). ?rescale= multiplies stored coordinates, for
// annotations drawn at a different zoom.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	owner, _ := identity.FromContext(r.Context())
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		s.respondError(w, http.StatusBadRequest, "invalid page")
		return
	}
	scale, err := floatParam(r, "scale", 1)
	if err != nil || scale <= 0 || scale > 8 {
		s.respondError(w, http.StatusBadRequest, "invalid scale")
		return
	}
	rescale, err := floatParam(r, "rescale", 1)
	if err != nil || rescale <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid rescale")
		return
	}

	doc, err := s.library.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	size, err := s.raster.RenderPage(r.Context(), doc.StoragePath, page, scale)
	if err == nil && size.Area() > render.MaxImagePixels {
		err = fmt.Errorf("%w: %dx%d", pdfinfo.ErrPageTooLarge, size.Width, size.Height)
	}
	if err != nil {
		s.logger.Warn("overlay: render page failed", zap.String("id", doc.ID), zap.Int("page", page), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	store := annotation.NewStore()
	for _, a := range doc.AnnotationMap[page] {
		rect := geometry.Scale(geometry.Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}, rescale)
		a.X, a.Y, a.Width, a.Height = rect.X, rect.Y, rect.Width, rect.Height
		store.Append(page, a)
	}
	surface := render.NewImageSurface(size.Width, size.Height)
	sess := &models.Session{Identity: owner, Document: doc, Page: page}
	render.NewController(sess, store, surface, nil).PageRendered(size.Width, size.Height)

	var buf bytes.Buffer
	if err := surface.EncodePNG(&buf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

// respondStoreError maps a not-found error to 404 and everything else to 500.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
