// Package classify decides whether a message body is a recall query or new
// content to memorize. It is a deterministic keyword heuristic, not an NLP
// model: no state, no external calls.
package classify

import "strings"

// Intent is the binary classification outcome.
type Intent string

const (
	IntentQuery  Intent = "QUERY"
	IntentMemory Intent = "MEMORY"
)

// Result carries the decision and, for query hits, the keyword that matched.
// Trigger exists for logging only; branching happens on Intent alone.
type Result struct {
	Intent  Intent
	Trigger string
}

// defaultKeywords is the ordered trigger list. First substring match wins, so
// order is part of the contract. Note that a message mixing a query keyword
// with new content ("show me X and also remember Y") classifies as QUERY; the
// memorization half is discarded on purpose.
var defaultKeywords = []string{
	"show me",
	"find",
	"search",
	"what",
	"when",
	"where",
	"how",
	"my memories",
	"my photos",
	"my voice notes",
	"yesterday",
	"last week",
	"last month",
	"remind me",
	"do i have",
	"did i",
}

// Classifier matches bodies against an ordered keyword list.
type Classifier struct {
	keywords []string
}

// New returns a classifier with the built-in keyword list.
func New() *Classifier {
	return &Classifier{keywords: defaultKeywords}
}

// NewWithKeywords returns a classifier using the given ordered list. Empty
// lists fall back to the defaults.
func NewWithKeywords(keywords []string) *Classifier {
	if len(keywords) == 0 {
		return New()
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	if len(normalized) == 0 {
		return New()
	}
	return &Classifier{keywords: normalized}
}

// Classify lowercases and trims the body, then decides. "/list" is an exact
// query command; otherwise the first matching keyword wins; no match means
// the message is new content to memorize. An empty body memorizes empty
// content rather than querying.
func (c *Classifier) Classify(body string) Result {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if normalized == "" {
		return Result{Intent: IntentMemory}
	}
	if normalized == "/list" {
		return Result{Intent: IntentQuery, Trigger: "/list"}
	}
	for _, kw := range c.keywords {
		if strings.Contains(normalized, kw) {
			return Result{Intent: IntentQuery, Trigger: kw}
		}
	}
	return Result{Intent: IntentMemory}
}
