package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result is the raw output of one research call plus its metadata. Absent
// citations or confidence mean unknown, not zero.
type Result struct {
	Content    string
	TokensUsed int
	Citations  []string
	Confidence *float64
	Degraded   bool
}

// Collector wraps the external research service, the sole network dependency
// with uncertain availability. All failure handling lives here: retry with
// backoff, reduced-scope retry, then a professional placeholder, so a single
// collaborator outage never aborts a multi-iteration job.
type Collector struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	cache   *gocache.Cache
	policy  Policy
	timeout time.Duration
	log     *zap.Logger
}

// CollectorConfig carries the knobs the collector needs.
type CollectorConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

func NewCollector(cfg CollectorConfig, log *zap.Logger) *Collector {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 0.5
	}
	return &Collector{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   gocache.New(10*time.Minute, 15*time.Minute),
		policy:  DefaultPolicy(cfg.MaxRetries),
		timeout: timeout,
		log:     log,
	}
}

// Research executes the query against the research service. It returns an
// error only when the caller's context is cancelled; every collaborator
// failure degrades to a usable (possibly placeholder) result instead.
func (c *Collector) Research(ctx context.Context, q Query) (*Result, error) {
	key := cacheKey(q)
	if cached, ok := c.cache.Get(key); ok {
		res := cached.(Result)
		return &res, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.callWithPolicy(ctx, q)
	if err == nil {
		c.cache.Set(key, *res, gocache.DefaultExpiration)
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if IsTimeout(err) {
		// Research likely still valuable but incomplete.
		c.log.Warn("research call timed out, returning partial-coverage response",
			zap.String("model", c.model), zap.Error(err))
		return c.partialResult(q), nil
	}

	if !q.Reduced {
		c.log.Warn("research call failed, retrying with reduced scope", zap.Error(err))
		reduced, rerr := c.callWithPolicy(ctx, ReduceScope(q))
		if rerr == nil {
			reduced.Degraded = true
			lowered := 0.5
			reduced.Confidence = &lowered
			return reduced, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = rerr
	}

	c.log.Warn("research call exhausted retries, returning placeholder", zap.Error(err))
	return c.placeholderResult(q), nil
}

func (c *Collector) callWithPolicy(ctx context.Context, q Query) (*Result, error) {
	var res *Result
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: q.SystemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: q.Prompt},
			},
			Temperature: 0.2,
		})
		if err != nil {
			return fmt.Errorf("research service: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("research service: empty response")
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		res = &Result{
			Content:    content,
			TokensUsed: resp.Usage.TotalTokens,
			Citations:  extractURLs(content),
		}
		return nil
	})
	return res, err
}

// partialResult covers the timeout case: research is acknowledged incomplete
// and confidence is lowered, but the job carries on.
func (c *Collector) partialResult(q Query) *Result {
	lowered := 0.3
	return &Result{
		Content: "Research coverage for this pass is partial: the research service did not respond " +
			"within the allotted time. Available sources were not fully reviewed. " +
			"Findings from other passes remain valid; treat this pass as incomplete rather than clear.",
		Confidence: &lowered,
		Degraded:   true,
	}
}

// placeholderResult is the last rung of the fallback ladder.
func (c *Collector) placeholderResult(q Query) *Result {
	lowered := 0.2
	return &Result{
		Content: "No research results could be retrieved for this pass due to a service outage. " +
			"This does not indicate an absence of adverse information. " +
			"A follow-up pass is recommended once the research service recovers.",
		Confidence: &lowered,
		Degraded:   true,
	}
}

func cacheKey(q Query) string {
	h := sha256.Sum256([]byte(q.SystemInstruction + "\x00" + q.Prompt + "\x00" + q.SearchDepth))
	return hex.EncodeToString(h[:])
}

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]]+`)

// extractURLs pulls cited URLs out of the response text, deduplicated in
// first-seen order.
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	var unique []string
	for _, u := range matches {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}
