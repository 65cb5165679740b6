package research

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/credrisk/diligence-engine/internal/models"
)

// ParseKind tags how a synthesis response was interpreted.
type ParseKind int

const (
	ParseStrictJSON ParseKind = iota
	ParseCodeblockJSON
	ParseOpaqueText
)

// ParseResult is the tagged union resolved at the collaborator boundary, so
// internal components never shape-sniff raw responses.
type ParseResult struct {
	Kind ParseKind
	JSON json.RawMessage
	Text string
}

var codeblockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// ParseSynthesisOutput attempts a strict JSON parse, then extraction of a
// fenced JSON block from markdown, then falls back to opaque prose. It never
// fails.
func ParseSynthesisOutput(s string) ParseResult {
	trimmed := strings.TrimSpace(s)
	if json.Valid([]byte(trimmed)) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		return ParseResult{Kind: ParseStrictJSON, JSON: json.RawMessage(trimmed)}
	}
	if m := codeblockPattern.FindStringSubmatch(trimmed); m != nil && json.Valid([]byte(m[1])) {
		return ParseResult{Kind: ParseCodeblockJSON, JSON: json.RawMessage(m[1])}
	}
	return ParseResult{Kind: ParseOpaqueText, Text: trimmed}
}

const analystPreamble = "You are a senior credit risk analyst at an Indian NBFC preparing " +
	"due-diligence material for a credit committee. Be factual, conservative and specific. " +
	"Never invent facts that are not present in the supplied data."

// Synthesizer wraps the language-model synthesis collaborator: it extracts
// structured findings from raw research text and renders report prose.
type Synthesizer struct {
	client  *openai.Client
	model   string
	policy  Policy
	timeout time.Duration
	log     *zap.Logger
}

// SynthesizerConfig carries the collaborator connection settings.
type SynthesizerConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

func NewSynthesizer(cfg SynthesizerConfig, log *zap.Logger) *Synthesizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Synthesizer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		policy:  DefaultPolicy(cfg.MaxRetries),
		timeout: timeout,
		log:     log,
	}
}

func (s *Synthesizer) complete(ctx context.Context, prompt string) (string, error) {
	var content string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: analystPreamble},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.1,
		})
		if err != nil {
			return fmt.Errorf("synthesis service: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("synthesis service: empty response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// ExtractFindings asks the synthesis service to pull candidate findings from
// raw research text. Malformed output degrades to an empty candidate set; a
// parse problem is never surfaced as an error.
func (s *Synthesizer) ExtractFindings(ctx context.Context, companyName, rawText string) ([]models.CandidateFinding, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, nil
	}
	prompt := fmt.Sprintf(
		"Extract every distinct adverse or material fact about %s from the research text below. "+
			"Respond with JSON only: {\"findings\": [{\"category\", \"severity\", \"title\", \"description\", "+
			"\"amount\", \"date\", \"source\", \"status\", \"financial_risk\", \"operational_risk\", "+
			"\"reputational_risk\", \"credit_impact\", \"probability_of_occurrence\", "+
			"\"verification_level\", \"timeline_impact\"}]}.\n\nResearch text:\n%s",
		companyName, rawText)

	content, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed := ParseSynthesisOutput(content)
	if parsed.Kind == ParseOpaqueText {
		s.log.Warn("synthesis returned non-JSON extraction output, treating as no findings",
			zap.String("company", companyName))
		return nil, nil
	}

	var envelope struct {
		Findings []models.CandidateFinding `json:"findings"`
	}
	if err := json.Unmarshal(parsed.JSON, &envelope); err == nil && len(envelope.Findings) > 0 {
		return envelope.Findings, nil
	}
	// Some models answer with a bare array.
	var bare []models.CandidateFinding
	if err := json.Unmarshal(parsed.JSON, &bare); err == nil {
		return bare, nil
	}
	s.log.Warn("synthesis extraction JSON had an unexpected shape, treating as no findings",
		zap.String("company", companyName))
	return nil, nil
}

// RenderSection asks the synthesis service for one report section. The
// caller substitutes a deterministic template when this fails.
func (s *Synthesizer) RenderSection(ctx context.Context, section string, data interface{}) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(
		"Write the %q section of a due-diligence report from the structured data below. "+
			"Two to four paragraphs of plain prose, no markdown headers.\n\nData:\n%s",
		section, payload)

	content, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	parsed := ParseSynthesisOutput(content)
	if parsed.Kind != ParseOpaqueText {
		// Prose was requested; a JSON answer means the model misfired, but the
		// payload may still contain usable text.
		var wrapper struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(parsed.JSON, &wrapper) == nil && wrapper.Text != "" {
			return wrapper.Text, nil
		}
		return string(parsed.JSON), nil
	}
	return parsed.Text, nil
}
