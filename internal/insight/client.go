package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIURL         = "https://api.openai.com/v1/chat/completions"
	DefaultModel          = "gpt-4o-mini"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// Config holds chat-completions client configuration.
type Config struct {
	APIURL         string
	APIKey         string
	Model          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// counsel is the JSON object the system prompt asks the model to return.
type counsel struct {
	CommonPoints      string   `json:"common_points"`
	Differences       string   `json:"differences"`
	SuggestedDialogue []string `json:"suggested_dialogue"`
}

// Client is a Generator backed by an OpenAI-compatible chat-completions API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a chat-completions client. The connect timeout bounds
// dialing and the TLS handshake; the read timeout bounds the wait for the
// response headers.
func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
	}
}

func (c *Client) Generate(ctx context.Context, req Request) (*Summary, error) {
	if len(req.Answers) == 0 {
		return nil, ErrNoAnswers
	}

	userPrompt, err := UserPrompt(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return nil, errors.New("chat response has no content")
	}

	return parseCounsel(chat.Choices[0].Message.Content)
}

func parseCounsel(content string) (*Summary, error) {
	var cs counsel
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &cs); err != nil {
		return nil, fmt.Errorf("decode counsel content: %w", err)
	}

	s := &Summary{}
	if v := strings.TrimSpace(cs.CommonPoints); v != "" {
		s.CommonThemes = []string{v}
	}
	if v := strings.TrimSpace(cs.Differences); v != "" {
		s.GenerationDifferences = []string{v}
	}
	for _, line := range cs.SuggestedDialogue {
		if v := strings.TrimSpace(line); v != "" {
			s.ConversationSuggestions = append(s.ConversationSuggestions, v)
		}
	}
	if len(s.CommonThemes) == 0 && len(s.GenerationDifferences) == 0 && len(s.ConversationSuggestions) == 0 {
		return nil, errors.New("counsel content is empty")
	}
	return s, nil
}
