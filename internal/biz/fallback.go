package biz

import (
	"fmt"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Category is a fallback task category. When every key is unusable the
// responder classifies the request into one of these and synthesizes a
// structured answer instead of an error string.
type Category string

const (
	CategoryPlanning        Category = "planning"
	CategoryAnalysis        Category = "analysis"
	CategoryResearch        Category = "research"
	CategoryAutomation      Category = "automation"
	CategoryContent         Category = "content"
	CategoryTroubleshooting Category = "troubleshooting"
	CategoryGeneric         Category = "generic"
)

// categoryKeywords maps each category to its trigger keywords. Order in this
// slice is the fixed classification priority: the first category with a
// keyword hit wins, so a prompt matching several categories classifies
// deterministically.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryPlanning, []string{"plan", "strategy", "approach", "steps", "tasks", "roadmap"}},
	{CategoryAnalysis, []string{"analyze", "analysis", "examine", "review", "assess", "evaluate"}},
	{CategoryResearch, []string{"research", "find", "search", "look up", "investigate", "gather"}},
	{CategoryAutomation, []string{"automate", "automation", "workflow", "scrape", "extract", "browser", "navigate", "form", "submit"}},
	{CategoryContent, []string{"write", "compose", "draft", "generate", "create content", "email", "message", "post"}},
	{CategoryTroubleshooting, []string{"error", "problem", "issue", "fix", "resolve", "troubleshoot", "debug"}},
}

// fallbackTemplates holds the synthesized response per category: a short
// lead-in plus ordered, actionable steps. Deliberately deterministic so the
// degraded path is testable.
var fallbackTemplates = map[Category]struct {
	lead  string
	steps []string
}{
	CategoryPlanning: {
		lead: "The language model is temporarily unavailable, so here is a structured starting plan you can act on now:",
		steps: []string{
			"State the goal in one sentence and the deadline if there is one.",
			"Break the goal into 3-5 concrete milestones.",
			"For each milestone, list the single next action and its owner.",
			"Identify the one dependency or risk most likely to block progress.",
			"Schedule a checkpoint to revisit the plan once model capacity returns.",
		},
	},
	CategoryAnalysis: {
		lead: "Model capacity is exhausted right now; this checklist covers the core of a sound analysis in the meantime:",
		steps: []string{
			"Collect the raw inputs (documents, numbers, logs) in one place.",
			"Separate observed facts from assumptions and label each.",
			"Compare against a baseline or expectation and note the deltas.",
			"Rank findings by impact, not by order of discovery.",
			"Write a one-paragraph summary; re-run the deep analysis when the model is back.",
		},
	},
	CategoryResearch: {
		lead: "No model capacity is available at the moment; these steps will move the research forward without it:",
		steps: []string{
			"Write down the precise question and what a sufficient answer looks like.",
			"List 2-3 authoritative sources to check first.",
			"Capture findings with their source links as you go.",
			"Note contradictions between sources rather than resolving them prematurely.",
			"Queue the synthesis step for when model capacity returns.",
		},
	},
	CategoryAutomation: {
		lead: "The model backend is temporarily exhausted; prepare the automation so it can run as soon as capacity returns:",
		steps: []string{
			"List each manual step of the workflow in execution order.",
			"Mark the steps that need credentials or human confirmation.",
			"Identify the selectors, fields, or endpoints each step touches.",
			"Define the success check for the final step.",
			"Retry the automated run shortly; capacity usually recovers within minutes.",
		},
	},
	CategoryContent: {
		lead: "Content generation is temporarily degraded; this outline will make the eventual draft fast:",
		steps: []string{
			"Define the audience and the single message they should take away.",
			"Sketch the structure: opening hook, 2-3 supporting points, call to action.",
			"Collect any facts, links, or quotes the piece must include.",
			"Note tone and length constraints.",
			"Submit the request again shortly for a full draft.",
		},
	},
	CategoryTroubleshooting: {
		lead: "Diagnostic assistance is temporarily degraded; work through this standard isolation sequence:",
		steps: []string{
			"Capture the exact error message and the time it first occurred.",
			"Identify the last change before the problem appeared.",
			"Reproduce the issue with the smallest possible input.",
			"Check logs around the failure timestamp for earlier warnings.",
			"If the issue persists, retry this request once model capacity recovers.",
		},
	},
	CategoryGeneric: {
		lead: "All model capacity is temporarily exhausted. Your request was received and can be retried shortly; meanwhile:",
		steps: []string{
			"Break the request into smaller, independent parts if possible.",
			"Note any context the answer must take into account.",
			"Retry in about a minute; capacity usually recovers quickly.",
		},
	},
}

// FallbackResult is a synthesized, non-provider answer.
type FallbackResult struct {
	Text     string
	Category Category
}

// FallbackResponder synthesizes structured degraded answers when the pool is
// exhausted for a request. Classification is pure keyword matching over the
// prompt; it never calls an external service. Repeated prompts hit an LRU
// memo instead of re-scanning.
type FallbackResponder struct {
	cache  *lru.Cache[string, Category]
	logger *log.Helper
}

// NewFallbackResponder creates a fallback responder.
func NewFallbackResponder(logger log.Logger) (*FallbackResponder, error) {
	cache, err := lru.New[string, Category](512)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification cache: %w", err)
	}
	return &FallbackResponder{
		cache:  cache,
		logger: log.NewHelper(logger),
	}, nil
}

// Respond builds the degraded answer for a request.
func (f *FallbackResponder) Respond(req *Request) *FallbackResult {
	category := f.Classify(req.Prompt)
	tpl := fallbackTemplates[category]

	var b strings.Builder
	b.WriteString(tpl.lead)
	for i, step := range tpl.steps {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, step))
	}

	f.logger.Infow("msg", "fallback response synthesized", "category", category)

	return &FallbackResult{
		Text:     b.String(),
		Category: category,
	}
}

// Classify maps a prompt onto a category: fixed priority order, first
// keyword hit wins, generic when nothing matches.
func (f *FallbackResponder) Classify(prompt string) Category {
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	if normalized == "" {
		return CategoryGeneric
	}

	if cached, ok := f.cache.Get(normalized); ok {
		return cached
	}

	category := CategoryGeneric
	for _, entry := range categoryKeywords {
		if containsAny(normalized, entry.keywords) {
			category = entry.category
			break
		}
	}

	f.cache.Add(normalized, category)
	return category
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
