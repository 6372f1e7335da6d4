// Package gemini provides the outbound client for the Gemini generateContent
// REST API. It carries one credential per call: key rotation, rate limiting
// and circuit breaking all live in the gateway, which hands the client a
// secret per attempt.
package gemini

import "fmt"

// Part is one piece of request or response content: text, or inline binary
// data for vision requests.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries base64-encoded media for the vision model.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Content is an ordered list of parts with an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig mirrors the generateContent generation_config object.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// SafetySetting mirrors the generateContent safety_settings entries.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings,omitempty"`
}

// GenerateResponse is the generateContent response body.
type GenerateResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// ErrorResponse is the provider error envelope.
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// StatusError is a non-2xx provider response. The gateway's error
// classification routes on StatusCode.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (HTTP %d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (HTTP %d %s)", e.StatusCode, e.Status)
}
