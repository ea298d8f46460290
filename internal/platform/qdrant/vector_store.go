package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentcloud/vector-db-proxy/internal/platform/ctxutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

const maxErrorBodyBytes = 1024

// VectorStore talks to Qdrant over its REST API.
type VectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type restPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	s := &VectorStore{
		log:     log.With("service", "QdrantVectorStore", "transport", TransportREST),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	if err := s.verifyReady(ctx); err != nil {
		return nil, err
	}

	s.log.Info(
		"Qdrant vector store selected",
		"url", s.baseURL,
		"distance", cfg.Distance,
		"create_collections", cfg.CreateCollections,
	)
	return s, nil
}

func (s *VectorStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	const op = "collection_exists"
	if strings.TrimSpace(collection) == "" {
		return false, opErr(op, OperationErrorValidation, "collection name is required", nil)
	}
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, collectionPath(collection, "/exists"), nil, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

func (s *VectorStore) CreateCollection(ctx context.Context, collection string, spec vectorstore.CollectionSpec) error {
	const op = "create_collection"
	if strings.TrimSpace(collection) == "" {
		return opErr(op, OperationErrorValidation, "collection name is required", nil)
	}
	if spec.VectorSize <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("invalid vector size %d", spec.VectorSize), nil)
	}
	distance := spec.Distance
	if distance == "" {
		distance = vectorstore.DistanceCosine
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     spec.VectorSize,
			"distance": string(distance),
		},
	}
	return s.doJSON(ctx, op, http.MethodPut, collectionPath(collection, ""), req, nil)
}

func (s *VectorStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body, err := toRESTPoints(points)
	if err != nil {
		return err
	}
	req := map[string]any{"points": body}
	return s.doJSON(ctx, op, http.MethodPut, collectionPath(collection, "/points?wait=true"), req, nil)
}

func toRESTPoints(points []vectorstore.Point) ([]restPoint, error) {
	const op = "upsert"
	out := make([]restPoint, 0, len(points))
	dim := len(points[0].Vector)
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
		}
		if len(p.Vector) != dim {
			return nil, opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, dim, len(p.Vector)),
				nil,
			)
		}
		out = append(out, restPoint{ID: id, Vector: p.Vector, Payload: clonePayload(p.Payload)})
	}
	return out, nil
}

func (s *VectorStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (s *VectorStore) authorize(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := OperationErrorRequestFailed
		if resp.StatusCode == http.StatusNotFound {
			code = OperationErrorNotFound
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func collectionPath(collection, suffix string) string {
	return "/collections/" + url.PathEscape(strings.TrimSpace(collection)) + suffix
}
