package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"caregate/internal/blobstore"
	"caregate/internal/document/models"
	"caregate/pkg/platform/sentinel"
)

var tracer = otel.Tracer("caregate/extraction")

// HTTPClient talks to the extraction vendor's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient builds the vendor adapter. The timeout bounds every call;
// on expiry the call fails cleanly and the pipeline's retry policy decides
// what happens next.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	Handle       string `json:"handle"`
	DocumentType string `json:"document_type"`
}

type extractResponse struct {
	Confidence       float64           `json:"confidence"`
	Fields           map[string]string `json:"fields"`
	FlaggedSensitive bool              `json:"flagged_sensitive"`
}

// Extract submits the stored document for OCR extraction.
func (c *HTTPClient) Extract(ctx context.Context, handle blobstore.Handle, docType models.Type) (*models.ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "extraction.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("document.type", string(docType)))

	body, err := json.Marshal(extractRequest{
		Handle:       string(handle),
		DocumentType: string(docType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("extraction call: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("extraction call: %w: status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		span.SetStatus(codes.Error, "bad payload")
		return nil, fmt.Errorf("decode extraction response: %w: %w", sentinel.ErrUnavailable, err)
	}

	span.SetAttributes(attribute.Float64("extraction.confidence", out.Confidence))
	return &models.ExtractionResult{
		Confidence:       out.Confidence,
		Fields:           out.Fields,
		FlaggedSensitive: out.FlaggedSensitive,
	}, nil
}
