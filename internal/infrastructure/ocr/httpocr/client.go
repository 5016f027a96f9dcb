package httpocr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
	"github.com/kirillkom/scale-ticket-service/internal/infrastructure/resilience"
)

const extractPath = "/v1/extract"

// Client sends stored ticket images to an OCR service and returns the seven ticket fields.
type Client struct {
	baseURL    string
	httpClient *http.Client
	images     ports.ObjectStorage
	executor   *resilience.Executor
	schema     *jsonschema.Schema
}

type Options struct {
	Timeout            time.Duration
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, images ports.ObjectStorage, opts Options) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("ocr service url is required")
	}
	schema, err := compileExtractionSchema()
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		images:     images,
		executor:   opts.ResilienceExecutor,
		schema:     schema,
	}, nil
}

type extractResponse struct {
	Fields map[string]struct {
		Value      json.RawMessage `json:"value"`
		Confidence float64         `json:"confidence"`
	} `json:"fields"`
}

func (c *Client) Extract(ctx context.Context, image domain.ImageRef) (domain.Extraction, error) {
	body, err := resilience.ExecuteValue(ctx, c.executor, "ocr.extract", func(callCtx context.Context) ([]byte, error) {
		return c.postImage(callCtx, image)
	}, classifyOCRError)
	if err != nil {
		return domain.Extraction{}, wrapTemporaryIfNeeded("ocr extract", err)
	}

	if err := validateResponse(c.schema, body); err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtractionFailed, "ocr extract", err)
	}
	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtractionFailed, "ocr extract", err)
	}
	return toExtraction(resp), nil
}

func toExtraction(resp extractResponse) domain.Extraction {
	out := domain.Extraction{Fields: make(map[domain.FieldName]domain.OCRField[string], len(domain.RequiredFields))}
	for _, name := range domain.RequiredFields {
		raw, ok := resp.Fields[string(name)]
		if !ok {
			continue
		}
		out.Fields[name] = domain.OCRField[string]{Value: rawValue(raw.Value), Confidence: raw.Confidence}
	}
	return out
}

func rawValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(string(v))
}
