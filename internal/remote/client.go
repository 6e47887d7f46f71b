package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kilupskalvis/doclink/internal/models"
)

// StackClient defines the contract for communicating with a document stack.
type StackClient interface {
	Find(ctx context.Context, doctype string, req *FindRequest) (*models.Response, error)
	Get(ctx context.Context, doctype, id string) (*models.Response, error)
	AllDocs(ctx context.Context, doctype string, ids []string) (*models.Response, error)

	Create(ctx context.Context, doc *models.Document) (*models.Response, error)
	Update(ctx context.Context, doc *models.Document) (*models.Response, error)
	Delete(ctx context.Context, doc *models.Document) (*models.Response, error)
	AddReferencedBy(ctx context.Context, target *models.Document, refs []models.DocumentRef) (*models.Response, error)

	UploadFile(ctx context.Context, dirID, name, contentType string, r io.Reader) (*models.Response, error)
	DownloadFile(ctx context.Context, id string) (io.ReadCloser, error)

	ListApps(ctx context.Context) (*models.Response, error)
}

// HTTPClient implements StackClient over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based stack client.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (c *HTTPClient) dataURL(doctype string, parts ...string) string {
	u := c.baseURL + "/data/" + url.PathEscape(doctype) + "/"
	for i, p := range parts {
		if i > 0 {
			u += "/"
		}
		u += url.PathEscape(p)
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Find runs a mango query on doctype.
func (c *HTTPClient) Find(ctx context.Context, doctype string, req *FindRequest) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "POST", c.dataURL(doctype, "_find"), req, &resp); err != nil {
		return nil, fmt.Errorf("find %s: %w", doctype, err)
	}
	return &resp, nil
}

// Get fetches a single document.
func (c *HTTPClient) Get(ctx context.Context, doctype, id string) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "GET", c.dataURL(doctype, id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get %s: %w", models.DocumentKey(doctype, id), err)
	}
	return &resp, nil
}

// AllDocs fetches documents by id. Unknown ids are skipped.
func (c *HTTPClient) AllDocs(ctx context.Context, doctype string, ids []string) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "POST", c.dataURL(doctype, "_all_docs"), &AllDocsRequest{Keys: ids}, &resp); err != nil {
		return nil, fmt.Errorf("all docs %s: %w", doctype, err)
	}
	return &resp, nil
}

// Create stores a new document.
func (c *HTTPClient) Create(ctx context.Context, doc *models.Document) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "POST", c.dataURL(doc.Type), doc, &resp); err != nil {
		return nil, fmt.Errorf("create %s: %w", doc.Type, err)
	}
	return &resp, nil
}

// Update replaces a document.
func (c *HTTPClient) Update(ctx context.Context, doc *models.Document) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "PUT", c.dataURL(doc.Type, doc.ID), doc, &resp); err != nil {
		return nil, fmt.Errorf("update %s: %w", doc.Key(), err)
	}
	return &resp, nil
}

// Delete removes a document.
func (c *HTTPClient) Delete(ctx context.Context, doc *models.Document) (*models.Response, error) {
	u := c.dataURL(doc.Type, doc.ID)
	if doc.Rev != "" {
		u += "?rev=" + url.QueryEscape(doc.Rev)
	}
	var resp models.Response
	if err := c.doJSON(ctx, "DELETE", u, nil, &resp); err != nil {
		return nil, fmt.Errorf("delete %s: %w", doc.Key(), err)
	}
	return &resp, nil
}

// AddReferencedBy adds refs to the referenced_by slot of target.
func (c *HTTPClient) AddReferencedBy(ctx context.Context, target *models.Document, refs []models.DocumentRef) (*models.Response, error) {
	var resp models.Response
	u := c.dataURL(target.Type, target.ID, "relationships", models.ReferencedByKey)
	if err := c.doJSON(ctx, "POST", u, &ReferencesRequest{Data: refs}, &resp); err != nil {
		return nil, fmt.Errorf("add references to %s: %w", target.Key(), err)
	}
	return &resp, nil
}

// UploadFile streams file content into directory dirID.
func (c *HTTPClient) UploadFile(ctx context.Context, dirID, name, contentType string, r io.Reader) (*models.Response, error) {
	u := fmt.Sprintf("%s/files/%s?Name=%s", c.baseURL, url.PathEscape(dirID), url.QueryEscape(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := c.do(ctx, "POST", u, r, map[string]string{"Content-Type": contentType})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var out models.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// DownloadFile streams the content of a file.
func (c *HTTPClient) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "GET", c.baseURL+"/files/download/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	return resp.Body, nil
}

// ListApps returns the installed applications.
func (c *HTTPClient) ListApps(ctx context.Context) (*models.Response, error) {
	var resp models.Response
	if err := c.doJSON(ctx, "GET", c.baseURL+"/apps/", nil, &resp); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return &resp, nil
}

// StackError is a non-2xx reply of the stack.
type StackError struct {
	Code      string
	Message   string
	Status    int
	RequestID string // X-Request-ID of the failed request, when the stack sets one
}

func (e *StackError) Error() string {
	msg := fmt.Sprintf("stack error (%d): %s: %s", e.Status, e.Code, e.Message)
	if e.RequestID != "" {
		msg += " [request " + e.RequestID + "]"
	}
	return msg
}

func decodeError(resp *http.Response) error {
	stackErr := &StackError{
		Code:      "unknown",
		Message:   fmt.Sprintf("HTTP %d", resp.StatusCode),
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get(RequestIDHeader),
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		stackErr.Code = errResp.Error
		stackErr.Message = errResp.Message
	}
	return stackErr
}

// Verify that *HTTPClient implements StackClient at compile time
var _ StackClient = (*HTTPClient)(nil)
