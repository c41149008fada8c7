package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// GeminiBackend calls the Gemini generateContent REST endpoint.
type GeminiBackend struct {
	baseURL     string
	httpClient  *http.Client
	temperature float64
	maxTokens   int
}

// NewGeminiBackend creates a backend from cfg. Per-attempt timeouts come
// from the request context.
func NewGeminiBackend(cfg *Config) *GeminiBackend {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &GeminiBackend{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{},
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
	}
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	SafetySettings    []geminiSafety   `json:"safetySettings"`
	GenerationConfig  geminiGeneration `json:"generationConfig"`
}

type geminiTool struct {
	FunctionDeclarations []FunctionDecl `json:"functionDeclarations"`
}

type geminiSafety struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGeneration struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Generate implements Backend.
func (g *GeminiBackend) Generate(ctx context.Context, cred Credential, model string, req *Request) (*Response, error) {
	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-goog-api-key", cred.Key)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return classify(&apiResp)
}

func (g *GeminiBackend) buildRequest(req *Request) *geminiRequest {
	out := &geminiRequest{
		GenerationConfig: geminiGeneration{Temperature: g.temperature, MaxOutputTokens: g.maxTokens},
	}
	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		out.Contents = append(out.Contents, geminiContent{Role: string(m.Role), Parts: []geminiPart{{Text: m.Text}}})
	}
	if len(req.Functions) > 0 {
		out.Tools = []geminiTool{{FunctionDeclarations: req.Functions}}
	}
	for _, c := range safetyCategories {
		out.SafetySettings = append(out.SafetySettings, geminiSafety{Category: c, Threshold: "BLOCK_NONE"})
	}
	return out
}

// classify picks a function call over text. Anything else is empty.
func classify(apiResp *geminiResponse) (*Response, error) {
	if len(apiResp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	parts := apiResp.Candidates[0].Content.Parts

	for _, p := range parts {
		if p.FunctionCall != nil && p.FunctionCall.Name != "" {
			return &Response{Call: &FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}}, nil
		}
	}
	var text strings.Builder
	for _, p := range parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: strings.TrimSpace(text.String())}, nil
}
