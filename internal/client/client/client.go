package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/bridgeupload/internal/client/models"
)

// HTTPClient talks to the /v3 upload routes with a participant token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

func (c *HTTPClient) CreateUpload(ctx context.Context, req models.UploadRequest) (*models.UploadSession, error) {
	var session models.UploadSession
	if err := c.do(ctx, http.MethodPost, "/v3/uploads", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CompleteUpload acknowledges uploadID. With synchronous set it waits for
// validation and returns its status; otherwise the status is nil.
func (c *HTTPClient) CompleteUpload(ctx context.Context, uploadID string, synchronous bool) (*models.ValidationStatus, error) {
	path := "/v3/uploads/" + url.PathEscape(uploadID) + "/complete"
	if !synchronous {
		return nil, c.do(ctx, http.MethodPost, path, nil, nil)
	}

	var st models.ValidationStatus
	if err := c.do(ctx, http.MethodPost, path+"?synchronous=true", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) Status(ctx context.Context, uploadID string) (*models.ValidationStatus, error) {
	var st models.ValidationStatus
	if err := c.do(ctx, http.MethodGet, "/v3/uploads/"+url.PathEscape(uploadID)+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, payload.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, payload.Error)
	case http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
}
