package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/config"
	"github.com/hyperjump/pdfmark/internal/identity"
	"github.com/hyperjump/pdfmark/internal/library"
	"github.com/hyperjump/pdfmark/internal/metrics"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/pdfinfo"
	"github.com/hyperjump/pdfmark/internal/pdfinfo/pdftest"
	"github.com/hyperjump/pdfmark/internal/storage"
)

const (
	testID  = "0f4c1f7e-5d0b-4a57-8f5f-6b5de8b0a001"
	otherID = "0f4c1f7e-5d0b-4a57-8f5f-6b5de8b0a002"
)

type testEnv struct {
	srv *Server
	lib *library.Library
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{
		DatabasePath: filepath.Join(dir, "db", "documents.db"),
		BlobRoot:     filepath.Join(dir, "files"),
	}}
	config.ApplyDefaults(cfg)

	meta, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	ts := httptest.NewUnstartedServer(nil)
	blobs, err := storage.NewDiskBlobStore(cfg.Storage.BlobRoot, "http://"+ts.Listener.Addr().String())
	require.NoError(t, err)

	m := metrics.New()
	lib := library.New(meta, blobs, library.WithMetrics(m))
	srv := NewServer(lib, pdfinfo.NewPDFRasterizer(blobs), identity.NewLocalResolver(cfg.Auth.LocalHeader),
		cfg, zap.NewNop(), WithMetrics(m))
	ts.Config.Handler = srv.Router()
	ts.Start()
	t.Cleanup(ts.Close)
	t.Cleanup(lib.Saver().Wait)
	return &testEnv{srv: srv, lib: lib, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path, who string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	if who != "" {
		req.Header.Set("X-Pdfmark-Identity", who)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) upload(t *testing.T, who, name string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/v1/documents", who, &body, mw.FormDataContentType())
}

func (e *testEnv) uploadDoc(t *testing.T, name string, pages int) *models.Document {
	t.Helper()
	resp := e.upload(t, testID, name, pdftest.Letter(pages))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc models.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return &doc
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/documents", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/documents", "not-a-uuid", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadListGet(t *testing.T) {
	e := newTestEnv(t)
	doc := e.uploadDoc(t, "paper.pdf", 2)
	assert.Equal(t, "paper.pdf", doc.OriginalName)
	assert.True(t, strings.HasPrefix(doc.StoragePath, testID+"/"))
	assert.True(t, strings.HasSuffix(doc.StoragePath, "_paper.pdf"))
	assert.Contains(t, doc.PublicURL, "/files/"+testID+"/")
	assert.NotNil(t, doc.AnnotationMap)

	var list struct {
		Documents []*models.Document `json:"documents"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/v1/documents", testID, nil, ""), &list)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, doc.ID, list.Documents[0].ID)

	decode(t, e.do(t, http.MethodGet, "/api/v1/documents", otherID, nil, ""), &list)
	assert.Empty(t, list.Documents)

	resp := e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, otherID, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]interface{}
	decode(t, resp, &got)
	for _, key := range []string{"id", "originalName", "storagePath", "publicUrl", "uploadedAt", "annotationMap"} {
		assert.Contains(t, got, key)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	e := newTestEnv(t)
	resp := e.upload(t, testID, "fake.pdf", []byte("definitely not a pdf"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/v1/documents", testID, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadAndPublicFile(t *testing.T) {
	e := newTestEnv(t)
	doc := e.uploadDoc(t, "paper.pdf", 1)

	resp := e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/file", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "paper.pdf")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pdftest.Letter(1), body)

	pub, err := http.Get(doc.PublicURL)
	require.NoError(t, err)
	defer pub.Body.Close()
	assert.Equal(t, http.StatusOK, pub.StatusCode)

	resp = e.do(t, http.MethodGet, "/files/"+testID+"/missing.pdf", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveAnnotationsAndExport(t *testing.T) {
	e := newTestEnv(t)
	doc := e.uploadDoc(t, "report.pdf", 3)

	body := `{"2":[{"x":10,"y":20,"width":30,"height":40,"kind":"marker","createdAt":"2024-01-02T03:04:05Z"}],"1":[]}`
	resp := e.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID+"/annotations", testID, strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID+"/annotations", otherID, strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	bad := `{"1":[{"x":1,"y":1,"width":10,"height":10,"kind":"circle"}]}`
	resp = e.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID+"/annotations", testID, strings.NewReader(bad), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	tiny := `{"1":[{"x":10,"y":10,"width":2,"height":1,"kind":"highlight"}]}`
	resp = e.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID+"/annotations", testID, strings.NewReader(tiny), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/export", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename=report_annotations.json`, resp.Header.Get("Content-Disposition"))
	var bundle models.ExportBundle
	decode(t, resp, &bundle)
	assert.Equal(t, "report.pdf", bundle.PdfName)
	require.Len(t, bundle.Annotations[2], 1)
	assert.Equal(t, models.KindMarker, bundle.Annotations[2][0].Kind)
	list, ok := bundle.Annotations[1]
	assert.True(t, ok)
	assert.Empty(t, list)
}

func TestOverlayRejectsHugePage(t *testing.T) {
	e := newTestEnv(t)
	resp := e.upload(t, testID, "huge.pdf", pdftest.Build(200000, 200000))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc models.Document
	decode(t, resp, &doc)

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/1/overlay.png?scale=8", testID, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Contains(t, body["error"], "too large")

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/1/overlay.png?scale=0.01", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2000, img.Bounds().Dx())
}

func TestOverlayPNG(t *testing.T) {
	e := newTestEnv(t)
	doc := e.uploadDoc(t, "paper.pdf", 1)
	body := `{"1":[{"x":10,"y":10,"width":100,"height":50,"kind":"highlight","createdAt":"2024-01-02T03:04:05Z"}]}`
	resp := e.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID+"/annotations", testID, strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/1/overlay.png", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 612, img.Bounds().Dx())
	assert.Equal(t, 792, img.Bounds().Dy())
	_, _, _, inside := img.At(50, 30).RGBA()
	assert.NotZero(t, inside)
	_, _, _, outside := img.At(300, 300).RGBA()
	assert.Zero(t, outside)

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/1/overlay.png?scale=0.5&rescale=0.5", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err = png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 306, img.Bounds().Dx())
	_, _, _, moved := img.At(50, 30).RGBA()
	assert.Zero(t, moved, "rescaled annotation ends at x=55, y=30")

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/9/overlay.png", testID, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/pages/x/overlay.png", testID, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDocument(t *testing.T) {
	e := newTestEnv(t)
	doc := e.uploadDoc(t, "paper.pdf", 1)

	resp := e.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, otherID, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "deleted", out["status"])
	assert.Empty(t, out["storage_error"])

	resp = e.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, testID, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	e.uploadDoc(t, "a.pdf", 1)
	e.uploadDoc(t, "b.pdf", 1)

	resp := e.do(t, http.MethodGet, "/api/v1/status", testID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]interface{}
	decode(t, resp, &status)
	assert.Equal(t, float64(2), status["documents"])
	assert.Contains(t, status, "disk_usage_bytes")

	resp = e.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), `pdfmark_uploads_total{status="ok"} 2`)
}

func TestValidateAnnotations(t *testing.T) {
	tests := []struct {
		name    string
		m       models.AnnotationMap
		wantErr bool
	}{
		{"empty", models.AnnotationMap{}, false},
		{"ok", models.AnnotationMap{1: {{Width: 5, Height: 5, Kind: models.KindHighlight}}}, false},
		{"page zero", models.AnnotationMap{0: {}}, true},
		{"bad kind", models.AnnotationMap{1: {{Width: 5, Height: 5, Kind: "pen"}}}, true},
		{"negative", models.AnnotationMap{1: {{Width: -1, Height: 5, Kind: models.KindMarker}}}, true},
		{"tiny", models.AnnotationMap{1: {{Width: 2, Height: 1, Kind: models.KindHighlight}}}, true},
		{"narrow", models.AnnotationMap{1: {{Width: 4, Height: 50, Kind: models.KindMarker}}}, true},
		{"flat", models.AnnotationMap{1: {{Width: 50, Height: 4.9, Kind: models.KindMarker}}}, true},
		{"exactly minimum", models.AnnotationMap{2: {{X: 3, Y: 3, Width: 5, Height: 5, Kind: models.KindMarker}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAnnotations(tt.m, 5)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAnnotations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
