package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/lyalik/geo-locator/internal/media"
)

var _ Service = (*Client)(nil)

// Client talks to the detection service over HTTP. The base URL is
// environment configuration and is never hardcoded here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		// Timeouts are enforced per call through the request context;
		// the dispatcher owns the bounds.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *Client) AnalyzeImage(ctx context.Context, data []byte, filename, locationHint string) (*media.Analysis, error) {
	fields := map[string]string{}
	if locationHint != "" {
		fields["location_hint"] = locationHint
	}
	return c.analyze(ctx, c.baseURL+"/api/v1/analyze/image", data, filename, fields)
}

func (c *Client) AnalyzeVideo(ctx context.Context, data []byte, filename string, settings media.Settings) (*media.Analysis, error) {
	fields := map[string]string{
		"frame_interval": strconv.Itoa(settings.FrameInterval),
		"max_frames":     strconv.Itoa(settings.MaxFrames),
	}
	if settings.LocationHint != "" {
		fields["location_hint"] = settings.LocationHint
	}
	return c.analyze(ctx, c.baseURL+"/api/v1/analyze/video", data, filename, fields)
}

func (c *Client) analyze(ctx context.Context, url string, data []byte, filename string, fields map[string]string) (*media.Analysis, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file payload: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach detection service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !env.Success {
		c.logger.Debug("detection service declined analysis",
			"file", filename, "error", env.Error, "suggestion", env.Suggestion)
		return nil, &ApplicationError{Message: env.Error, Suggestion: env.Suggestion}
	}

	if env.Result == nil {
		return nil, fmt.Errorf("detection service reported success without a result")
	}

	return normalize(env.Result), nil
}
