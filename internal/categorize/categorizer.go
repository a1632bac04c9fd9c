// Package categorize assigns category labels to free-form content with
// deterministic keyword rules. Confidence reflects the strength of the rule
// match; content no rule recognizes lands in "general" with low confidence.
package categorize

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/doxa-ai/doxa/internal/domain"
)

// Fixed category set.
const (
	CategoryPreference   = "preference"
	CategoryFact         = "fact"
	CategoryEvent        = "event"
	CategoryDecision     = "decision"
	CategoryTask         = "task"
	CategoryContact      = "contact"
	CategoryLocation     = "location"
	CategoryRelationship = "relationship"
	CategoryGeneral      = "general"
)

// Categories returns the fixed category names in rank-stable order.
func Categories() []string {
	return []string{
		CategoryPreference, CategoryFact, CategoryEvent, CategoryDecision,
		CategoryTask, CategoryContact, CategoryLocation, CategoryRelationship,
		CategoryGeneral,
	}
}

// ValidCategory reports whether name is one of the fixed categories.
func ValidCategory(name string) bool {
	for _, c := range Categories() {
		if c == name {
			return true
		}
	}
	return false
}

// keyword weights per category. Feedback nudges these within
// [minKeywordWeight, maxKeywordWeight].
var defaultRules = map[string]map[string]float64{
	CategoryPreference: {
		"love": 0.8, "like": 0.6, "prefer": 0.9, "favorite": 0.9, "enjoy": 0.7,
		"hate": 0.8, "dislike": 0.8, "want": 0.4, "wish": 0.4,
	},
	CategoryEvent: {
		"meeting": 0.8, "appointment": 0.8, "yesterday": 0.6, "tomorrow": 0.6,
		"today": 0.4, "happened": 0.7, "attended": 0.7, "scheduled": 0.7,
		"tonight": 0.6, "weekend": 0.5,
	},
	CategoryDecision: {
		"decided": 0.9, "chose": 0.8, "choose": 0.6, "agreed": 0.7,
		"concluded": 0.8, "settled": 0.6, "committed": 0.7,
	},
	CategoryTask: {
		"todo": 0.9, "task": 0.8, "need": 0.4, "must": 0.5, "should": 0.4,
		"finish": 0.6, "complete": 0.6, "deadline": 0.8, "remind": 0.7,
	},
	CategoryContact: {
		"email": 0.7, "phone": 0.7, "call": 0.5, "contact": 0.8, "reach": 0.4,
		"number": 0.4, "address": 0.5,
	},
	CategoryLocation: {
		"lives": 0.7, "located": 0.8, "city": 0.6, "country": 0.6,
		"moved": 0.6, "capital": 0.7, "street": 0.6, "office": 0.4,
	},
	CategoryRelationship: {
		"friend": 0.7, "colleague": 0.7, "partner": 0.6, "wife": 0.8,
		"husband": 0.8, "brother": 0.7, "sister": 0.7, "mother": 0.7,
		"father": 0.7, "boss": 0.6, "team": 0.4,
	},
	CategoryFact: {
		"is": 0.2, "are": 0.2, "was": 0.2, "has": 0.2, "always": 0.4,
		"never": 0.4, "fact": 0.8, "actually": 0.5,
	},
}

const (
	minKeywordWeight = 0.05
	maxKeywordWeight = 0.95
	feedbackStep     = 0.05

	// minimum score before a rule match beats "general".
	matchFloor = 0.3
)

type scored struct {
	category string
	score    float64
}

// Categorizer is the deterministic rule-based classifier. It is safe for
// concurrent use; feedback learning mutates the weights under a lock.
type Categorizer struct {
	mu     sync.RWMutex
	rules  map[string]map[string]float64
	logger *zap.Logger
}

func New(logger *zap.Logger) *Categorizer {
	rules := make(map[string]map[string]float64, len(defaultRules))
	for cat, kw := range defaultRules {
		m := make(map[string]float64, len(kw))
		for k, w := range kw {
			m[k] = w
		}
		rules[cat] = m
	}
	return &Categorizer{rules: rules, logger: logger}
}

// Categorize maps content to a label. Metadata may pin the category
// explicitly via the "category" key; the hint wins when it names a known
// category.
func (c *Categorizer) Categorize(ctx context.Context, content string, metadata map[string]string) (domain.CategoryLabel, error) {
	if hint := metadata["category"]; hint != "" && ValidCategory(hint) {
		return domain.CategoryLabel{
			Primary:    hint,
			Tags:       ExtractTags(content),
			Confidence: 1,
		}, nil
	}

	ranked := c.rank(content)
	label := domain.CategoryLabel{
		Primary:    CategoryGeneral,
		Tags:       ExtractTags(content),
		Confidence: 0.1,
	}
	if len(ranked) > 0 && ranked[0].score >= matchFloor {
		label.Primary = ranked[0].category
		label.Confidence = clamp01(ranked[0].score)
		if len(ranked) > 1 && ranked[1].score >= matchFloor {
			label.Secondary = ranked[1].category
		}
	}
	return label, nil
}

// CategorizeBatch labels each content in order.
func (c *Categorizer) CategorizeBatch(ctx context.Context, contents []string, metadata map[string]string) ([]domain.CategoryLabel, error) {
	out := make([]domain.CategoryLabel, len(contents))
	for i, content := range contents {
		label, err := c.Categorize(ctx, content, metadata)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// SuggestAlternatives returns up to n category names ranked behind the
// primary match.
func (c *Categorizer) SuggestAlternatives(ctx context.Context, content string, n int) ([]string, error) {
	ranked := c.rank(content)
	out := make([]string, 0, n)
	for i, sc := range ranked {
		if i == 0 || sc.score <= 0 {
			continue
		}
		out = append(out, sc.category)
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

// RecordFeedback nudges keyword weights toward the corrected category: the
// content's keywords gain weight there and lose it under the mistaken one.
// Weights stay bounded so no single correction dominates.
func (c *Categorizer) RecordFeedback(content, wrongCategory, rightCategory string) {
	if !ValidCategory(rightCategory) || rightCategory == CategoryGeneral {
		return
	}
	tokens := tokenize(content)

	c.mu.Lock()
	defer c.mu.Unlock()
	right := c.rules[rightCategory]
	if right == nil {
		right = make(map[string]float64)
		c.rules[rightCategory] = right
	}
	wrong := c.rules[wrongCategory]
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if w, ok := right[tok]; ok {
			right[tok] = clampWeight(w + feedbackStep)
		}
		if wrong != nil {
			if w, ok := wrong[tok]; ok {
				wrong[tok] = clampWeight(w - feedbackStep)
			}
		}
	}
	if c.logger != nil {
		c.logger.Debug("categorizer feedback applied",
			zap.String("from", wrongCategory),
			zap.String("to", rightCategory))
	}
}

// rank scores every category against the content, strongest first. The score
// is the strongest keyword hit plus a small bonus per extra hit.
func (c *Categorizer) rank(content string) []scored {
	tokens := tokenize(content)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	ranked := make([]scored, 0, len(c.rules))
	for cat, keywords := range c.rules {
		var best float64
		hits := 0
		for kw, w := range keywords {
			if _, ok := set[kw]; ok {
				hits++
				if w > best {
					best = w
				}
			}
		}
		if hits == 0 {
			continue
		}
		score := best + 0.05*float64(hits-1)
		ranked = append(ranked, scored{category: cat, score: clamp01(score)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].category < ranked[j].category
	})
	return ranked
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampWeight(v float64) float64 {
	if v < minKeywordWeight {
		return minKeywordWeight
	}
	if v > maxKeywordWeight {
		return maxKeywordWeight
	}
	return v
}
