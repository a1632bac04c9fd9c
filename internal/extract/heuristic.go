package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/doxa-ai/doxa/internal/categorize"
	"github.com/doxa-ai/doxa/internal/domain"
)

var (
	favoriteRe   = regexp.MustCompile(`(?i)\bmy favou?rite ([a-z ]+?) is ([^.!?;,]+)`)
	preferenceRe = regexp.MustCompile(`(?i)\bi (?:really |truly |absolutely )?(love|like|prefer|enjoy|hate|dislike) ([^.!?;,]+)`)
	identityRe   = regexp.MustCompile(`(?i)\bi(?:'m| am) (?:a |an |)([^.!?;,]+)`)
	factRe       = regexp.MustCompile(`(?i)^(?:the |)([a-z0-9' ]+?) (is|are|was|were|has|have) ([^.!?;]+)$`)

	negationWords = map[string]struct{}{
		"not": {}, "never": {}, "no": {}, "isnt": {}, "arent": {}, "dont": {},
		"doesnt": {}, "wasnt": {}, "werent": {}, "cant": {}, "wont": {},
	}

	antonyms = map[string]string{
		"love": "hate", "hate": "love",
		"like": "dislike", "dislike": "like",
		"enjoy": "hate",
		"always": "never", "never": "always",
	}

	linkingVerbs = []string{" is ", " are ", " was ", " were "}
)

// HeuristicProvider distills belief candidates with deterministic pattern
// rules. It covers preference, identity, and subject-value statements well
// enough to drive the analyzer without a model behind it.
type HeuristicProvider struct {
	categorizer *categorize.Categorizer
}

func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{categorizer: categorize.New(nil)}
}

func (p *HeuristicProvider) Extract(ctx context.Context, content, agentID, categoryHint string) ([]domain.BeliefCandidate, error) {
	var out []domain.BeliefCandidate
	for _, sentence := range splitSentences(content) {
		if c, ok := p.candidateFor(sentence, categoryHint); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *HeuristicProvider) candidateFor(sentence, categoryHint string) (domain.BeliefCandidate, bool) {
	trimmed := strings.TrimSpace(sentence)
	if trimmed == "" {
		return domain.BeliefCandidate{}, false
	}

	if m := favoriteRe.FindStringSubmatch(trimmed); m != nil {
		subject := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		return domain.BeliefCandidate{
			Statement:    "my favorite " + subject + " is " + value,
			Category:     categorize.CategoryPreference,
			Confidence:   0.85,
			EvidenceSpan: m[0],
		}, true
	}
	if m := preferenceRe.FindStringSubmatch(trimmed); m != nil {
		verb := strings.ToLower(m[1])
		object := strings.TrimSpace(m[2])
		return domain.BeliefCandidate{
			Statement:    "i " + verb + " " + object,
			Category:     categorize.CategoryPreference,
			Confidence:   0.8,
			EvidenceSpan: m[0],
		}, true
	}
	if m := identityRe.FindStringSubmatch(trimmed); m != nil {
		return domain.BeliefCandidate{
			Statement:    "i am " + strings.TrimSpace(m[1]),
			Category:     categorize.CategoryFact,
			Confidence:   0.7,
			EvidenceSpan: m[0],
		}, true
	}
	if m := factRe.FindStringSubmatch(trimmed); m != nil {
		subject := strings.TrimSpace(m[1])
		// Pronouns and stubs make useless belief subjects.
		if len(tokens(subject)) == 0 || isPronoun(subject) {
			return domain.BeliefCandidate{}, false
		}
		category := categoryHint
		if category == "" {
			category = categorize.CategoryFact
		}
		return domain.BeliefCandidate{
			Statement:    strings.ToLower(subject) + " " + m[2] + " " + strings.TrimSpace(m[3]),
			Category:     category,
			Confidence:   0.6,
			EvidenceSpan: m[0],
		}, true
	}
	return domain.BeliefCandidate{}, false
}

// Similarity is token-set Jaccard over the normalized statements.
func (p *HeuristicProvider) Similarity(ctx context.Context, statementA, statementB string) (float64, error) {
	a := tokenSet(statementA)
	b := tokenSet(statementB)
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	matched := 0
	for t := range a {
		if _, ok := b[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(a)+len(b)-matched), nil
}

// Contradicts detects two shapes of direct contradiction: a negated twin of
// the same statement, and a value swap on the same subject ("... is foo" vs
// "... is bar"). Antonym verb pairs over the same object count as negation.
func (p *HeuristicProvider) Contradicts(ctx context.Context, statementA, statementB, categoryA, categoryB string) (bool, error) {
	na := domain.NormalizeStatement(statementA)
	nb := domain.NormalizeStatement(statementB)
	if na == "" || nb == "" || na == nb {
		return false, nil
	}

	if negatedTwin(na, nb) || negatedTwin(nb, na) {
		return true, nil
	}
	if antonymPair(na, nb) {
		return true, nil
	}
	if valueSwap(na, nb) {
		return true, nil
	}
	return false, nil
}

func (p *HeuristicProvider) ExtractCategory(ctx context.Context, statement string) (string, error) {
	label, err := p.categorizer.Categorize(ctx, statement, nil)
	if err != nil {
		return categorize.CategoryGeneral, nil
	}
	return label.Primary, nil
}

// Rescore grades how well a statement is grounded in its source content:
// token containment scaled into a usable confidence band, with a small
// bonus when the context hint overlaps too.
func (p *HeuristicProvider) Rescore(ctx context.Context, content, statement, contextHint string) (float64, error) {
	stmt := tokenSet(statement)
	if len(stmt) == 0 {
		return 0, nil
	}
	src := tokenSet(content)
	matched := 0
	for t := range stmt {
		if _, ok := src[t]; ok {
			matched++
		}
	}
	score := 0.3 + 0.6*float64(matched)/float64(len(stmt))
	if contextHint != "" {
		hint := tokenSet(contextHint)
		for t := range stmt {
			if _, ok := hint[t]; ok {
				score += 0.05
				break
			}
		}
	}
	if score > 0.95 {
		score = 0.95
	}
	return score, nil
}

// Merge satisfies domain.StatementMerger. The broader statement wins when
// one contains the other; otherwise both are kept joined.
func (p *HeuristicProvider) Merge(ctx context.Context, statementA, statementB string) (string, error) {
	na := domain.NormalizeStatement(statementA)
	nb := domain.NormalizeStatement(statementB)
	switch {
	case na == nb:
		return na, nil
	case strings.Contains(na, nb):
		return na, nil
	case strings.Contains(nb, na):
		return nb, nil
	default:
		return na + "; " + nb, nil
	}
}

func negatedTwin(a, b string) bool {
	ta := tokens(a)
	var stripped []string
	negated := false
	for _, t := range ta {
		if _, ok := negationWords[t]; ok {
			negated = true
			continue
		}
		stripped = append(stripped, t)
	}
	if !negated {
		return false
	}
	sa := setOf(stripped)
	sb := tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return false
	}
	matched := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			matched++
		}
	}
	return float64(matched)/float64(len(sa)+len(sb)-matched) >= 0.6
}

func antonymPair(a, b string) bool {
	ta, tb := tokenSet(a), tokenSet(b)
	for verb, opposite := range antonyms {
		if _, ok := ta[verb]; !ok {
			continue
		}
		if _, ok := tb[opposite]; !ok {
			continue
		}
		// Same object on both sides, only the verbs opposed.
		shared := 0
		for t := range ta {
			if t == verb {
				continue
			}
			if _, ok := tb[t]; ok {
				shared++
			}
		}
		if shared >= 1 {
			return true
		}
	}
	return false
}

func valueSwap(a, b string) bool {
	for _, verb := range linkingVerbs {
		ia := strings.LastIndex(a, verb)
		ib := strings.LastIndex(b, verb)
		if ia <= 0 || ib <= 0 {
			continue
		}
		subjectA, valueA := a[:ia], strings.TrimSpace(a[ia+len(verb):])
		subjectB, valueB := b[:ib], strings.TrimSpace(b[ib+len(verb):])
		if subjectA == subjectB && valueA != "" && valueB != "" && valueA != valueB {
			return true
		}
	}
	return false
}

func splitSentences(content string) []string {
	return strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || r == '\n'
	})
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]struct{} {
	return setOf(tokens(s))
}

func setOf(ts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		set[t] = struct{}{}
	}
	return set
}

func isPronoun(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "it", "he", "she", "they", "this", "that", "there", "i", "we", "you":
		return true
	}
	return false
}
