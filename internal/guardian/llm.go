package guardian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/gzhole/kubeguard/internal/redact"
)

const (
	// DefaultLLMBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultLLMModel   = "gemini-2.0-flash"
	DefaultLLMTimeout = 15 * time.Second
)

const systemPrompt = `You are a security analyst scoring shell commands observed inside a Kubernetes pod.
For every command, estimate the probability (0.0 to 1.0) that it is part of an attack:
reconnaissance, lateral movement, reverse shells, credential theft, data exfiltration or persistence.
Respond with JSON only, no prose and no Markdown, in exactly this shape:
{"results":[{"score":0.0,"reason":"one short sentence"}]}
Return exactly one result per command, in the same order as the input.`

// LLMConfig configures an LLMProvider.
type LLMConfig struct {
	// Name is reported as the provider name. Defaults to "gemini".
	Name string

	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds a single batch call. Defaults to DefaultLLMTimeout.
	Timeout time.Duration

	// RatePerSecond limits outgoing calls; zero disables the limiter.
	RatePerSecond float64
	Burst         int
}

// LLMProvider scores a whole batch of commands with one chat-completion call
// to an OpenAI-compatible API. Commands are redacted before they leave the
// process. Any failure is reported as an *AdapterError; there are no retries.
type LLMProvider struct {
	name    string
	model   string
	timeout time.Duration
	client  openai.Client
	limiter *rate.Limiter
}

// NewLLMProvider builds a provider. An empty API key is a configuration
// error: callers decide at startup whether an external provider exists.
func NewLLMProvider(cfg LLMConfig) (*LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm provider: api key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "gemini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLLMBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	p := &LLMProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return p, nil
}

func (p *LLMProvider) Name() string { return p.name }

// ScoreBatch sends every line in a single request and returns one result per
// line, in order. It is all-or-nothing.
func (p *LLMProvider) ScoreBatch(ctx context.Context, lines []string) ([]Result, error) {
	if len(lines) == 0 {
		return []Result{}, nil
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return nil, p.fail(KindUnavailable, errors.New("rate limit exceeded"))
	}

	prompt, err := buildPrompt(lines)
	if err != nil {
		return nil, p.fail(KindUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, p.fail(KindTimeout, err)
		}
		return nil, p.fail(KindUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, p.fail(KindMalformed, errors.New("response has no choices"))
	}

	results, kind, err := parseResults(resp.Choices[0].Message.Content, len(lines))
	if err != nil {
		return nil, p.fail(kind, err)
	}
	return results, nil
}

func (p *LLMProvider) fail(kind ErrorKind, err error) *AdapterError {
	return &AdapterError{Provider: p.name, Kind: kind, Err: err}
}

func buildPrompt(lines []string) (string, error) {
	redacted := redact.RedactLines(lines)
	data, err := json.Marshal(redacted)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Score these %d commands (JSON array, in order):\n%s", len(lines), data), nil
}

// parseResults extracts exactly want results from a model reply. The reply
// may be wrapped in a Markdown code fence; a bare top-level array is also
// accepted.
func parseResults(content string, want int) ([]Result, ErrorKind, error) {
	body := stripCodeFence(content)
	if !gjson.Valid(body) {
		return nil, KindMalformed, errors.New("reply is not valid JSON")
	}

	root := gjson.Parse(body)
	list := root.Get("results")
	if !list.IsArray() {
		if !root.IsArray() {
			return nil, KindMalformed, errors.New(`reply has no "results" array`)
		}
		list = root
	}

	items := list.Array()
	if len(items) != want {
		return nil, KindMismatch, fmt.Errorf("got %d results for %d lines", len(items), want)
	}

	results := make([]Result, len(items))
	for i, item := range items {
		score := item.Get("score")
		if score.Type != gjson.Number {
			return nil, KindMalformed, fmt.Errorf("result %d has no numeric score", i)
		}
		reason := strings.TrimSpace(item.Get("reason").String())
		if reason == "" {
			reason = "No reason given"
		}
		results[i] = Result{Score: clamp01(score.Float()), Reason: reason}
	}
	return results, "", nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
