// Package ai estimates tailoring task time from a free-text description via
// the Gemini API. Any failure degrades to a fixed fallback estimate; the bot
// never surfaces AI errors to the customer.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiModel   = "gemini-1.5-flash"
	geminiTimeout = 20 * time.Second

	systemPrompt = "You are an expert master tailor. A client will describe a garment repair " +
		"or custom sewing task. Estimate the realistic time needed to complete this " +
		"task in minutes. Reply ONLY in raw JSON format without markdown blocks. " +
		`Format: {"task_summary": "string", "estimated_minutes": integer}.`
)

// Disclaimer is appended to customer-facing AI estimates.
const Disclaimer = "\n\n_⚠️ Це попередня оцінка AI. Фінальну вартість підтвердить майстер після огляду._"

type Estimate struct {
	TaskSummary      string `json:"task_summary"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

func fallback() Estimate {
	return Estimate{TaskSummary: "Стандартна робота", EstimatedMinutes: 60}
}

type Estimator struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewEstimator(apiKey string) *Estimator {
	return &Estimator{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: geminiTimeout},
	}
}

// NewEstimatorWithBase is used by tests to point at a fake API.
func NewEstimatorWithBase(apiKey, baseURL string) *Estimator {
	e := NewEstimator(apiKey)
	e.baseURL = baseURL
	return e
}

// Enabled reports whether an API key is configured.
func (e *Estimator) Enabled() bool { return e.apiKey != "" }

type generateRequest struct {
	SystemInstruction content   `json:"system_instruction"`
	Contents          []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Analyze returns the model's estimate for the described task, or the
// fallback when disabled, unreachable or answering garbage.
func (e *Estimator) Analyze(ctx context.Context, userText string) Estimate {
	if !e.Enabled() || strings.TrimSpace(userText) == "" {
		return fallback()
	}

	reqBody := generateRequest{
		SystemInstruction: content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Parts: []part{{Text: userText}}}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fallback()
	}

	url := e.baseURL + "/v1beta/models/" + geminiModel + ":generateContent?key=" + e.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fallback()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fallback()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return fallback()
	}

	var gen generateResponse
	if err := sonic.Unmarshal(raw, &gen); err != nil || len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return fallback()
	}

	text := stripFences(gen.Candidates[0].Content.Parts[0].Text)
	var est Estimate
	if err := sonic.Unmarshal([]byte(text), &est); err != nil {
		return fallback()
	}
	if est.EstimatedMinutes <= 0 {
		return fallback()
	}
	if strings.TrimSpace(est.TaskSummary) == "" {
		est.TaskSummary = fallback().TaskSummary
	}
	return est
}

// stripFences removes a markdown code fence the model sometimes wraps its
// JSON in despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
