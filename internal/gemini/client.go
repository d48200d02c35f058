package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gamesmith/studio/internal/egress"
	"gamesmith/studio/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client wraps the Gemini generateContent API for structured-edit generation.
// Every call constrains the response to the edit schema; the raw candidate
// text is returned untouched for the extractor to recover.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"generativelanguage.googleapis.com"})
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	u, err := url.Parse(c.baseURL + "/v1beta/models")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return llm.ErrEgressBlocked
		}
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("validation failed: %s", resp.Status)
	}
	return nil
}

func (c *Client) GenerateEdit(ctx context.Context, apiKey string, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	payload := generateRequest{
		Contents: toContents(req.History, req.Prompt),
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   llm.EditResponseSchema(),
		},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	text, err := c.send(ctx, apiKey, req.Model, payload)
	if err != nil {
		return nil, err
	}
	return &llm.GenerateResponse{RawText: text}, nil
}

func (c *Client) send(ctx context.Context, apiKey, model string, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("content-type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return "", llm.ErrEgressBlocked
		}
		return "", err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini error: %s - %s", resp.Status, string(errorBody))
	}
	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", errors.New("gemini empty response")
	}
	var buf bytes.Buffer
	for _, p := range response.Candidates[0].Content.Parts {
		buf.WriteString(p.Text)
	}
	return buf.String(), nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case status == http.StatusBadRequest:
		return llm.ErrInvalidRequest
	case status >= 500:
		return llm.ErrUnavailable
	default:
		return nil
	}
}

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

func toContents(history []llm.Turn, prompt string) []content {
	result := make([]content, 0, len(history)+1)
	for _, turn := range history {
		result = append(result, content{Role: mapRole(turn.Role), Parts: []part{{Text: turn.Text}}})
	}
	result = append(result, content{Role: "user", Parts: []part{{Text: prompt}}})
	return result
}

func mapRole(role string) string {
	switch role {
	case "assistant", "model":
		return "model"
	default:
		return "user"
	}
}
