package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

// Client talks to a running document-validator service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) DoJSON(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return blob, resp.StatusCode, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	return blob, resp.StatusCode, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		blob, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = blob
	}
	blob, _, err := c.DoJSON(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type ValidateRequest struct {
	DocumentID    string                  `json:"document_id,omitempty"`
	DocType       string                  `json:"doc_type,omitempty"`
	Filename      string                  `json:"filename"`
	Content       []byte                  `json:"content"`
	ExtractedText string                  `json:"extracted_text,omitempty"`
	CaseContext   *validation.CaseContext `json:"case_context,omitempty"`
}

func (c *Client) ValidateDocument(ctx context.Context, req ValidateRequest) (validation.ValidationResult, error) {
	var out validation.ValidationResult
	err := c.call(ctx, http.MethodPost, "/v1/documents/validate", req, &out)
	return out, err
}

func (c *Client) ValidateBatch(ctx context.Context, docs []validation.BatchDocument, cc *validation.CaseContext) (validation.BatchResult, error) {
	var out validation.BatchResult
	err := c.call(ctx, http.MethodPost, "/v1/documents/validate-batch", map[string]any{
		"documents":    docs,
		"case_context": cc,
	}, &out)
	return out, err
}

func (c *Client) Classify(ctx context.Context, content []byte, filename, text string) (validation.ClassificationSummary, error) {
	var out validation.ClassificationSummary
	err := c.call(ctx, http.MethodPost, "/v1/documents/classify", map[string]any{
		"content":        content,
		"filename":       filename,
		"extracted_text": text,
	}, &out)
	return out, err
}

// ReportMarkdown fetches the stored markdown report of a validated document.
func (c *Client) ReportMarkdown(ctx context.Context, documentID string) (string, error) {
	blob, _, err := c.DoJSON(ctx, http.MethodGet, "/v1/results/"+url.PathEscape(documentID)+"/report", nil)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

func (c *Client) PolicyTypes(ctx context.Context) ([]string, error) {
	var resp struct {
		Policies []struct {
			DocType string `json:"doc_type"`
		} `json:"policies"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/policies", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Policies))
	for _, p := range resp.Policies {
		out = append(out, p.DocType)
	}
	return out, nil
}
