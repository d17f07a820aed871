package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"fleetshare.app/cloud/internal/logger"
)

// runner triggers the API's scheduled trial endpoints.
type runner struct {
	baseURL    string
	secret     string
	userAgent  string
	httpClient *http.Client
}

func newRunner(baseURL, secret, userAgent string, timeout time.Duration) *runner {
	return &runner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// runDaily sends trial notices and then expires lapsed trials. Notices go
// first so organizations whose trial ended today still get the expired
// notice. A failed step does not skip the next one.
func (r *runner) runDaily(ctx context.Context) error {
	var errs *multierror.Error

	report, err := r.post(ctx, "/api/cron/trial-notifications")
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("trial notifications: %w", err))
	} else {
		logger.Info("Trial notifications triggered", report)
	}

	result, err := r.post(ctx, "/api/cron/expire-trials")
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("expire trials: %w", err))
	} else {
		logger.Info("Trial sweep triggered", result)
	}

	return errs.ErrorOrNil()
}

func (r *runner) post(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.secret)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
