package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// API paths served by the expense tracker backend.
const (
	RegisterPath    = "/api/v1/auth/register"
	UploadImagePath = "/api/v1/auth/upload-image"
)

// RequestIDHeader carries a per-request identifier for server-side correlation.
const RequestIDHeader = "X-Request-ID"

// Client provides typed access to the expense tracker API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newID      func() string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the normalised API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
// Message is set only when the body is JSON with a non-empty "message" field.
type APIError struct {
	Status  int
	Message string
	Body    string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, v)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, c.newID())
	return req, nil
}

func (c *Client) send(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}

	if v == nil {
		return nil
	}
	// An empty success body leaves v at its zero value.
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	if body == nil {
		return apiErr
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	apiErr.Body = strings.TrimSpace(string(data))
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = strings.TrimSpace(payload.Message)
	}
	return apiErr
}

// User reflects API user payloads.
type User struct {
	ID              string    `json:"_id"`
	FullName        string    `json:"fullName"`
	Email           string    `json:"email"`
	ProfileImageURL string    `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RegisterInput captures the payload for account creation.
type RegisterInput struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// AuthResponse captures the token payload emitted by the API.
// Token is empty when the server created the account without signing in.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, RegisterPath, input, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Image is a file handed to UploadImage.
type Image struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// UploadResponse carries the public URL of an uploaded image.
type UploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

// UploadImage posts an image as multipart/form-data under the "image" field.
func (c *Client) UploadImage(ctx context.Context, img Image) (UploadResponse, error) {
	if img.Data == nil {
		return UploadResponse{}, fmt.Errorf("upload image: no data")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, imageFilename(img.Filename)))
	contentType := strings.TrimSpace(img.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, img.Data); err != nil {
		return UploadResponse{}, fmt.Errorf("copy image data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, UploadImagePath, &buf)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.send(req, &resp); err != nil {
		return UploadResponse{}, err
	}
	return resp, nil
}

func imageFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "profile"
	}
	return name
}
