package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// HTTPTransport is the primary tier: a multipart POST to the managed
// upload endpoint, which replies with a JSON {"id": ..., "url": ...}
// document.
type HTTPTransport struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPTransport returns a transport posting to endpoint with the
// default HTTP client. Per-attempt timeouts come from the tier's context.
func NewHTTPTransport(endpoint string) *HTTPTransport {
	return &HTTPTransport{Endpoint: endpoint, Client: &http.Client{}}
}

func (t *HTTPTransport) Name() string { return "primary" }

func (t *HTTPTransport) Upload(ctx context.Context, src models.SourceFile, body []byte) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", src.Name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(body); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.Client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient by definition.
		return nil, fmt.Errorf("post %s: %w", t.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: %s", resp.Status)
	case resp.StatusCode >= 300:
		return nil, MarkPermanent(fmt.Errorf("upload rejected: %s", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil || decoded.ID == "" || decoded.URL == "" {
		return nil, MarkPermanent(fmt.Errorf("malformed upload response: %.200q", data))
	}

	return &Result{RemoteID: decoded.ID, RemoteURL: decoded.URL}, nil
}
