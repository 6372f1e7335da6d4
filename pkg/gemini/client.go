package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RelayGate/internal/conf"

	"golang.org/x/net/proxy"
)

const (
	// DefaultBaseURL is the production generateContent endpoint host.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// UserAgent identifies RelayGate on outbound calls.
	UserAgent = "RelayGate/1.0"
)

// defaultGenerationConfig matches the dashboard's production settings.
var defaultGenerationConfig = GenerationConfig{
	Temperature:     0.9,
	TopP:            1,
	TopK:            1,
	MaxOutputTokens: 2048,
}

// defaultSafetySettings blocks medium-and-above harmful content across all
// categories.
var defaultSafetySettings = []SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// Client issues generateContent calls. It holds no credential state; the
// caller passes the API key per call. Per-attempt deadlines come from the
// request context, so the http.Client itself carries no timeout.
type Client struct {
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
}

// NewClient creates a provider client from gateway configuration.
// proxyURL supports socks5://, http:// and https:// schemes.
func NewClient(c *conf.Gateway) (*Client, error) {
	baseURL := DefaultBaseURL
	textModel := "gemini-pro"
	visionModel := "gemini-pro-vision"
	proxyURL := ""
	if c != nil {
		if c.BaseURL != "" {
			baseURL = c.BaseURL
		}
		if c.TextModel != "" {
			textModel = c.TextModel
		}
		if c.VisionModel != "" {
			visionModel = c.VisionModel
		}
		proxyURL = c.ProxyURL
	}

	httpClient, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		textModel:   textModel,
		visionModel: visionModel,
		httpClient:  httpClient,
	}, nil
}

// GenerateText generates a completion for prompt using the text model.
func (c *Client) GenerateText(ctx context.Context, apiKey, prompt string) (string, error) {
	req := &GenerateRequest{
		Contents:         []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: defaultGenerationConfig,
		SafetySettings:   defaultSafetySettings,
	}
	return c.generate(ctx, apiKey, c.textModel, req)
}

// GenerateVision generates a completion for prompt plus an image using the
// multimodal model.
func (c *Client) GenerateVision(ctx context.Context, apiKey, prompt, imageMIME string, imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("image data cannot be empty")
	}
	if imageMIME == "" {
		imageMIME = "image/png"
	}

	req := &GenerateRequest{
		Contents: []Content{{Parts: []Part{
			{Text: prompt},
			{InlineData: &InlineData{
				MIMEType: imageMIME,
				Data:     base64.StdEncoding.EncodeToString(imageData),
			}},
		}}},
		GenerationConfig: defaultGenerationConfig,
		SafetySettings:   defaultSafetySettings,
	}
	return c.generate(ctx, apiKey, c.visionModel, req)
}

// generate performs one generateContent call. Non-2xx responses come back as
// *StatusError so the gateway can classify them without parsing text.
func (c *Client) generate(ctx context.Context, apiKey, model string, genReq *GenerateRequest) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("apiKey cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)

	payload, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	// The credential travels in a header, never in the URL, so it cannot
	// leak through access logs.
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			statusErr.Message = errResp.Error.Message
			statusErr.Status = errResp.Error.Status
		}
		return "", statusErr
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("invalid response format: %w", err)
	}

	if len(genResp.Candidates) == 0 {
		if genResp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked by provider: %s", genResp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty response: no candidates")
	}

	var b strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// newHTTPClient creates the shared HTTP client, with proxy support.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			dialer, err := newSOCKS5Dialer(parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}

		case "http", "https":
			transport.Proxy = func(*http.Request) (*url.URL, error) {
				return parsed, nil
			}

		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", parsed.Scheme)
		}
	}

	return &http.Client{Transport: transport}, nil
}

// newSOCKS5Dialer creates a SOCKS5 dialer from a parsed proxy URL.
func newSOCKS5Dialer(parsed *url.URL) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{
			User:     parsed.User.Username(),
			Password: password,
		}
	}

	host := parsed.Host
	if !strings.Contains(host, ":") {
		host += ":1080" // SOCKS5 default port
	}

	return proxy.SOCKS5("tcp", host, auth, proxy.Direct)
}
