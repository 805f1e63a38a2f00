package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/xaenox/lummy-bot/internal/models"
)

const (
	// KeywordWeight is added for every curated keyword found in the query.
	KeywordWeight = 2
	// QuestionWordWeight is added for every long question word found in the query.
	QuestionWordWeight = 1
	// MinQuestionWordLen is exclusive: only words strictly longer count.
	MinQuestionWordLen = 3
	// Threshold is exclusive: the best score must be strictly greater.
	Threshold = 2
)

// FallbackAnswer is returned whenever no entry scores above Threshold.
const FallbackAnswer = "Je ne suis pas sûr de bien comprendre votre question. Pouvez-vous reformuler ou être plus précis ? Vous pouvez me demander des informations sur les ministères, les actualités récentes, ou comment utiliser ActuFlash IA ! 😊"

type Matcher interface {
	FindAnswer(query string) string
}

// Result describes the outcome of scoring a query against the corpus.
type Result struct {
	Entry   *models.CorpusEntry
	Score   int
	Matched bool
}

// KeywordMatcher scores queries by substring overlap with entry keywords
// and question words. It never mutates its corpus and is safe for concurrent use.
type KeywordMatcher struct {
	entries []models.CorpusEntry
}

func NewKeywordMatcher(entries []models.CorpusEntry) *KeywordMatcher {
	cp := make([]models.CorpusEntry, len(entries))
	copy(cp, entries)
	return &KeywordMatcher{entries: cp}
}

func (m *KeywordMatcher) Len() int {
	return len(m.entries)
}

// FindAnswer returns the answer of the best entry or FallbackAnswer.
func (m *KeywordMatcher) FindAnswer(query string) string {
	res := m.Match(query)
	if !res.Matched {
		return FallbackAnswer
	}
	return res.Entry.Answer
}

// Match returns the first entry holding the highest score. Matched is set
// only when that score exceeds Threshold.
func (m *KeywordMatcher) Match(query string) Result {
	lowerQuery := strings.ToLower(query)

	var res Result
	for i := range m.entries {
		score := Score(lowerQuery, &m.entries[i])
		if score > res.Score {
			res.Score = score
			res.Entry = &m.entries[i]
		}
	}

	res.Matched = res.Entry != nil && res.Score > Threshold
	return res
}

// Score computes the overlap between an already lowercased query and one entry.
func Score(lowerQuery string, entry *models.CorpusEntry) int {
	score := 0

	for _, keyword := range entry.Keywords {
		if strings.Contains(lowerQuery, strings.ToLower(keyword)) {
			score += KeywordWeight
		}
	}

	for _, word := range strings.Split(strings.ToLower(entry.Question), " ") {
		if utf8.RuneCountInString(word) > MinQuestionWordLen && strings.Contains(lowerQuery, word) {
			score += QuestionWordWeight
		}
	}

	return score
}
