package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitesync/internal/models"

	"github.com/rs/zerolog"
)

const defaultTimeout = 15 * time.Second

// PushFromUpdate builds the wire body for one queued update. This is the
// single place where a boolean milestone value becomes numeric 1/0.
func PushFromUpdate(u models.QueuedUpdate) models.MilestonePush {
	return models.MilestonePush{
		ComponentID:   u.ComponentID,
		MilestoneName: u.MilestoneName,
		NewValue:      u.Value.Wire(),
		UserID:        u.UserID,
	}
}

// HTTPClient applies milestone updates against the progress backend over
// one RPC-style endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zerolog.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// PushUpdate applies one milestone update. Failures come back as *Error,
// classified here and nowhere else.
func (c *HTTPClient) PushUpdate(ctx context.Context, push models.MilestonePush) error {
	body, err := json.Marshal(push)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("encode push: %v", err)}
	}

	url := c.baseURL + "/api/v1/milestone-updates"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// No status at all: network failure, retried with backoff.
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &Error{
		Kind:    classifyStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: readErrorMessage(resp),
	}
}

func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
