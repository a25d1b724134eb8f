package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tabprep/runtime/internal/errhandling"
	"github.com/tabprep/runtime/internal/logger"
	"github.com/tabprep/runtime/internal/modules/modconfig"
	"github.com/tabprep/runtime/internal/table"
	"github.com/tabprep/runtime/pkg/prep"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "tabprep/1.0"
	// maxErrorBody bounds how much of an error response is kept in messages.
	maxErrorBody = 512
)

// Response formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// HTTPInput downloads a dataset with an HTTP GET.
//
// Config fields:
//   - url or urlRef (required): address, or the environment variable holding it
//   - format: "csv" (default) or "json" (array of objects)
//   - timeoutMs: per-request timeout, default 30000
//   - headers: extra request headers
//   - retry: {maxAttempts, delayMs, maxDelayMs} for 429, 5xx and network errors
//   - types, nanValues, delimiter: as for the csv input
type HTTPInput struct {
	url     string
	format  string
	headers map[string]string
	retry   errhandling.RetryConfig
	read    table.ReadOptions
	client  *http.Client
}

// NewHTTPInputFromConfig creates an HTTP input module from configuration.
func NewHTTPInputFromConfig(cfg *prep.ModuleConfig) (*HTTPInput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	url, err := modconfig.StringOrRef("http", cfg.Config, "url", "urlRef")
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(modconfig.String(cfg.Config, "format"))
	switch format {
	case "":
		format = FormatCSV
	case FormatCSV, FormatJSON:
	default:
		return nil, &modconfig.ValidationError{Module: "http", Field: "format", Message: fmt.Sprintf("unknown format %q", format)}
	}
	retry := errhandling.ParseRetryConfig(modconfig.Map(cfg.Config, "retry"))
	if err := retry.Validate(); err != nil {
		return nil, &modconfig.ValidationError{Module: "http", Field: "retry", Message: err.Error()}
	}
	types, err := parseTypes("http", cfg.Config)
	if err != nil {
		return nil, err
	}
	read := table.ReadOptions{Types: types, NaNValues: modconfig.StringSlice(cfg.Config, "nanValues")}
	if d := modconfig.String(cfg.Config, "delimiter"); d != "" {
		read.Delimiter = []rune(d)[0]
	}
	return &HTTPInput{
		url:     url,
		format:  format,
		headers: modconfig.StringMap(cfg.Config, "headers"),
		retry:   retry,
		read:    read,
		client:  &http.Client{Timeout: modconfig.Timeout(cfg.Config, defaultHTTPTimeout)},
	}, nil
}

// Fetch downloads and parses the dataset, retrying transient failures.
func (h *HTTPInput) Fetch(ctx context.Context) (*table.Table, error) {
	var body []byte
	info, err := errhandling.Do(ctx, h.retry, func(ctx context.Context) error {
		b, err := h.get(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s after %d attempt(s): %w", h.url, info.Attempts, err)
	}
	if info.Attempts > 1 {
		logger.Info("http input succeeded after retry", "url", h.url, "attempts", info.Attempts, "total_delay", info.TotalDelay)
	}

	var t *table.Table
	switch h.format {
	case FormatJSON:
		var rows []map[string]interface{}
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, &errhandling.ClassifiedError{Category: errhandling.CategoryData, Message: "response is not a JSON array of objects", OriginalErr: err}
		}
		t, err = table.FromMaps(rows, h.read.Types)
	default:
		t, err = table.ReadCSV(bytes.NewReader(body), h.read)
	}
	if err != nil {
		return nil, &errhandling.ClassifiedError{Category: errhandling.CategoryData, Message: "parsing response", OriginalErr: err}
	}
	return t, nil
}

func (h *HTTPInput) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errhandling.NewConfigurationError("building request", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errhandling.NewNetworkError(fmt.Sprintf("GET %s", h.url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errhandling.ClassifyHTTPStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errhandling.NewNetworkError("reading response body", err)
	}
	return body, nil
}

// Close releases idle connections.
func (h *HTTPInput) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
