package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maximebr/fraud-assistant/internal/core/domain"
)

// Client talks to the qdrant HTTP API. Collections are named per index
// generation by the caller; the client itself is collection-agnostic.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateCollection(ctx context.Context, collection string, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	resp, err := c.send(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", collection), reqBody)
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists, which only happens when a
	// rebuild is re-run with the same generation name.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	return checkStatus(resp, "create collection")
}

func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	resp, err := c.send(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", collection), nil)
	if err != nil {
		return fmt.Errorf("qdrant delete collection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "delete collection")
}

func (c *Client) IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:     pointID(chunk.ChunkID),
			Vector: vectors[i],
			Payload: map[string]any{
				"chunk_id":    chunk.ChunkID,
				"doc_id":      chunk.DocID,
				"title":       chunk.Title,
				"content":     chunk.Content,
				"location":    chunk.Location,
				"source_path": chunk.SourcePath,
				"file_type":   chunk.FileType,
			},
		})
	}

	resp, err := c.send(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", collection),
		map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp, "upsert")
}

func (c *Client) Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.RetrievedPassage, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	resp, err := c.send(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", collection), reqBody)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "search"); err != nil {
		return nil, err
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievedPassage, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedPassage{
			Chunk: domain.Chunk{
				ChunkID:    payloadString(r.Payload, "chunk_id"),
				DocID:      payloadString(r.Payload, "doc_id"),
				Title:      payloadString(r.Payload, "title"),
				Content:    payloadString(r.Payload, "content"),
				Location:   payloadString(r.Payload, "location"),
				SourcePath: payloadString(r.Payload, "source_path"),
				FileType:   payloadString(r.Payload, "file_type"),
			},
			Score:      r.Score,
			TrustLevel: domain.TrustTrusted,
			Method:     domain.MethodSemantic,
		})
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

// pointID maps the content-addressed chunk id onto a stable UUID so
// re-upserting the same chunk overwrites instead of duplicating.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
