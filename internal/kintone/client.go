package kintone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/plugin-uploader/internal/version"
)

const (
	// AuthorizationHeader carries base64(username:password).
	AuthorizationHeader = "X-Cybozu-Authorization"

	// FileEndpoint receives multipart uploads and answers with a fileKey.
	FileEndpoint = "/k/v1/file.json"

	// PluginEndpoint installs (POST) or updates (PUT) plugins.
	PluginEndpoint = "/k/v1/plugin.json"

	// FileFieldName is the multipart field holding the package.
	FileFieldName = "file"

	// maxErrorBody caps how much of a failed response body is kept.
	maxErrorBody = 64 << 10
)

var (
	// errDomainRequired is returned when no domain is configured.
	errDomainRequired = errors.New("domain must be provided")
	// errEmptyFileKey is returned when the upload response lacks a fileKey.
	errEmptyFileKey = errors.New("upload response has no fileKey")
)

// Client talks to a single kintone domain.
type Client struct {
	// baseURL is scheme://host without a trailing slash.
	baseURL string
	// authorization is the precomputed X-Cybozu-Authorization value.
	authorization string
	// httpClient performs the requests.
	httpClient *http.Client
	// callTimeout bounds a single request; zero means no client-side deadline.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a timeout for every request.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// PluginRequest is the body of the install and update calls.
type PluginRequest struct {
	// FileKey references a package uploaded through FileEndpoint.
	FileKey string `json:"fileKey"`
	// ID targets an existing plugin; omitted for a fresh install.
	ID string `json:"id,omitempty"`
}

// PluginResponse is returned by the install and update calls.
type PluginResponse struct {
	// ID is the plugin identifier assigned by kintone.
	ID string `json:"id"`
	// Version is the plugin version taken from the package manifest.
	Version string `json:"version"`
}

// fileResponse is returned by the upload call.
type fileResponse struct {
	FileKey string `json:"fileKey"`
}

// New returns a client for domain. A bare host gets the https scheme; a value
// that already has a scheme is used as is.
func New(domain, username, password string, opts ...Option) (*Client, error) {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return nil, errDomainRequired
	}

	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}

	client := &Client{
		baseURL:       domain,
		authorization: Authorization(username, password),
		httpClient:    http.DefaultClient,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Authorization encodes the password authentication header value.
func Authorization(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// BaseURL returns the scheme and host requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadFile sends the file at path as a multipart upload and returns its fileKey.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	body, contentType, err := multipartBody(path)
	if err != nil {
		return "", err
	}

	var response fileResponse
	if err = c.do(ctx, http.MethodPost, FileEndpoint, contentType, body, &response); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	if response.FileKey == "" {
		return "", errEmptyFileKey
	}

	return response.FileKey, nil
}

// UpdatePlugin replaces the package of an installed plugin.
func (c *Client) UpdatePlugin(ctx context.Context, request *PluginRequest) (*PluginResponse, error) {
	response, err := c.sendPlugin(ctx, http.MethodPut, request)
	if err != nil {
		return nil, fmt.Errorf("update plugin: %w", err)
	}

	return response, nil
}

// InstallPlugin installs the uploaded package as a plugin.
func (c *Client) InstallPlugin(ctx context.Context, request *PluginRequest) (*PluginResponse, error) {
	response, err := c.sendPlugin(ctx, http.MethodPost, request)
	if err != nil {
		return nil, fmt.Errorf("install plugin: %w", err)
	}

	return response, nil
}

func (c *Client) sendPlugin(ctx context.Context, method string, request *PluginRequest) (*PluginResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode plugin request: %w", err)
	}

	var response PluginResponse
	if err = c.do(ctx, method, PluginEndpoint, "application/json", bytes.NewReader(payload), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// do performs an authenticated request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	finalURL := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(callCtx, method, finalURL, body)
	if err != nil {
		return err
	}

	req.Header.Set(AuthorizationHeader, c.authorization)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))

		return newAPIError(response.StatusCode, response.Status, data)
	}

	if err = json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", finalURL, err)
	}

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// multipartBody reads the package at path into a multipart form.
// Plugin packages are small zip files, so buffering keeps Content-Length known.
func multipartBody(path string) (io.Reader, string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, "", fmt.Errorf("open plugin file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	var (
		buffer bytes.Buffer
		writer = multipart.NewWriter(&buffer)
	)

	part, err := writer.CreateFormFile(FileFieldName, filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}

	if _, err = io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read plugin file: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}

	return &buffer, writer.FormDataContentType(), nil
}
