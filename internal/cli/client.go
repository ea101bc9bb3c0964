package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pdfmark/internal/models"
)

// ErrNotFound is returned when the server reports 404 for a document.
var ErrNotFound = errors.New("document not found")

// Client talks to a running pdfmark server on behalf of one identity.
type Client struct {
	baseURL    string
	header     string
	identity   string
	token      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithIdentity sends identity in header on every request.
func WithIdentity(header, identity string) ClientOption {
	return func(c *Client) {
		c.header = header
		c.identity = identity
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the identity's documents, newest first.
func (c *Client) List(ctx context.Context) ([]*models.Document, error) {
	var out struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Get returns one document.
func (c *Client) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(id), nil, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Upload sends content as a new document named name.
func (c *Client) Upload(ctx context.Context, name string, content []byte) (*models.Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var doc models.Document
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents", &body, mw.FormDataContentType(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteResponse is the server's answer to a delete.
type DeleteResponse struct {
	Status       string `json:"status"`
	StorageError string `json:"storage_error,omitempty"`
}

// Delete removes a document. A non-empty StorageError means the bytes may remain in storage.
func (c *Client) Delete(ctx context.Context, id string) (*DeleteResponse, error) {
	var out DeleteResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the annotation bundle of a document. It returns the raw JSON and the
// file name suggested by the server.
func (c *Client) Export(ctx context.Context, id string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(id)+"/export", nil, "")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read export: %w", err)
	}
	name := id + "_annotations.json"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}
	return data, name, nil
}

// Status returns the server status report.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends a request and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.header != "" && c.identity != "" {
		req.Header.Set(c.header, c.identity)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
