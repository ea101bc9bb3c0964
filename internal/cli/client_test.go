package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/pdfmark/internal/models"
)

const testIdentity = "5b1c9c6e-8f0a-4c55-9a59-3c7a1d1e2f3b"

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Pdfmark-Identity") != testIdentity && r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]interface{}{"documents": []*models.Document{{ID: "d1", OriginalName: "a.pdf"}}})
		case http.MethodPost:
			f, h, err := r.FormFile("file")
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field \"file\" is required"})
				return
			}
			b, _ := io.ReadAll(f)
			if string(b) != "%PDF-fake" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "please select a valid PDF file"})
				return
			}
			writeJSON(w, http.StatusCreated, &models.Document{ID: "new", OriginalName: h.Filename})
		}
	})
	mux.HandleFunc("/api/v1/documents/d1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, &models.Document{ID: "d1", OriginalName: "a.pdf"})
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "storage_error": "disk busy"})
		}
	})
	mux.HandleFunc("/api/v1/documents/d1/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="../a_annotations.json"`)
		_, _ = w.Write([]byte(`{"pdfName":"a.pdf"}`))
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"documents": 7, "disk_usage_bytes": 2048})
	})
	mux.HandleFunc("/api/v1/documents/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ListAndGet(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL+"/", WithIdentity("X-Pdfmark-Identity", testIdentity))
	ctx := context.Background()

	docs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].OriginalName)

	doc, err := c.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Token(t *testing.T) {
	srv := newFakeServer(t)
	docs, err := NewClient(srv.URL, WithToken("tok")).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestClient_Unauthorized(t *testing.T) {
	srv := newFakeServer(t)
	_, err := NewClient(srv.URL).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestClient_Upload(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, WithIdentity("X-Pdfmark-Identity", testIdentity), WithHTTPClient(srv.Client()))

	doc, err := c.Upload(context.Background(), "/tmp/in/report.pdf", []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.OriginalName)

	_, err = c.Upload(context.Background(), "notes.txt", []byte("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "please select a valid PDF file")
}

func TestClient_DeleteExportStatus(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, WithIdentity("X-Pdfmark-Identity", testIdentity))
	ctx := context.Background()

	res, err := c.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "deleted", res.Status)
	assert.Equal(t, "disk busy", res.StorageError)

	data, name, err := c.Export(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "a_annotations.json", name)
	assert.JSONEq(t, `{"pdfName":"a.pdf"}`, string(data))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Documents)
	assert.Equal(t, int64(2048), st.DiskUsageBytes)
}
