package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIVersion = "2023-07-31"
	defaultModelID    = "prebuilt-receipt"
)

// Azure implements the Analyzer interface using the Azure AI Document
// Intelligence REST API
type Azure struct {
	endpoint     string
	key          string
	modelID      string
	apiVersion   string
	pollInterval time.Duration
	client       *http.Client
}

// AzureOption configures an Azure client
type AzureOption func(*Azure)

// WithPollInterval sets how often the analyze operation is polled
func WithPollInterval(d time.Duration) AzureOption {
	return func(a *Azure) {
		a.pollInterval = d
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) AzureOption {
	return func(a *Azure) {
		a.client = c
	}
}

// WithModel selects a different prebuilt or custom model
func WithModel(modelID string) AzureOption {
	return func(a *Azure) {
		if modelID != "" {
			a.modelID = modelID
		}
	}
}

// NewAzure creates a new Azure Analyzer instance. It fails with
// ErrMissingCredentials before any network call when endpoint or key is empty.
func NewAzure(endpoint, key string, opts ...AzureOption) (*Azure, error) {
	if endpoint == "" || key == "" {
		return nil, ErrMissingCredentials
	}

	a := &Azure{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		modelID:      defaultModelID,
		apiVersion:   defaultAPIVersion,
		pollInterval: time.Second,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// analyzeOperation is the body returned when polling an analyze operation
type analyzeOperation struct {
	Status        string  `json:"status"`
	AnalyzeResult *Result `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze submits the document and polls the operation until it finishes
func (a *Azure) Analyze(ctx context.Context, data []byte, contentType string) (*Result, error) {
	docData, docType, err := PrepareDocument(data, contentType)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", a.endpoint, a.modelID, a.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(docData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", docType)
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling document intelligence API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("document intelligence API error (status %d): %s", resp.StatusCode, string(body))
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return nil, fmt.Errorf("document intelligence API returned no operation location")
	}

	slog.Debug("Document submitted for analysis", "model", a.modelID, "size", len(docData), "content_type", docType)
	return a.poll(ctx, operationURL)
}

// poll waits for the analyze operation to reach a terminal state
func (a *Azure) poll(ctx context.Context, operationURL string) (*Result, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		op, err := a.getOperation(ctx, operationURL)
		if err != nil {
			return nil, err
		}

		switch op.Status {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return &Result{}, nil
			}
			return op.AnalyzeResult, nil
		case "failed", "canceled":
			if op.Error != nil {
				return nil, fmt.Errorf("analyze operation %s: %s: %s", op.Status, op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("analyze operation %s", op.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for analyze operation: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Azure) getOperation(ctx context.Context, operationURL string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling analyze operation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("document intelligence API error (status %d): %s", resp.StatusCode, string(body))
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decoding analyze operation: %w", err)
	}
	return &op, nil
}
