package rag

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

const (
	DefaultSearchLimit = 10
	candidateLimit     = 30
	maxTokens          = 6
	minTokenLength     = 3
	ScoringDescription = "token match count over up to 6 tokens"
)

var nonWord = regexp.MustCompile(`[^a-z0-9가-힣\s]`)

// Tokenize lowercases the query, strips punctuation and keeps up to six
// tokens of three or more runes.
func Tokenize(query string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(query), " ")
	var tokens []string
	for _, f := range strings.Fields(cleaned) {
		if runeLen(f) < minTokenLength {
			continue
		}
		tokens = append(tokens, f)
		if len(tokens) == maxTokens {
			break
		}
	}
	return tokens
}

type ChunkSearcher interface {
	Candidates(ctx context.Context, terms []string, lang string, sourceTypes []string, limit int) ([]Hit, error)
}

type Query struct {
	Query       string   `json:"query"`
	Lang        string   `json:"lang"`
	SourceTypes []string `json:"sourceTypes"`
	Limit       int      `json:"limit"`
}

type Searcher struct {
	store ChunkSearcher
}

func NewSearcher(store ChunkSearcher) *Searcher {
	return &Searcher{store: store}
}

// Search is lexical: candidates matching any term are ranked by how many
// distinct terms they contain. Ties keep the store's order.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Hit, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		terms = []string{query}
	}

	hits, err := s.store.Candidates(ctx, terms, q.Lang, q.SourceTypes, candidateLimit)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		content := strings.ToLower(hits[i].Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(content, strings.ToLower(t)) {
				score++
			}
		}
		hits[i].Score = score
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func decodeMetadata(raw []byte) datatypes.JSONMap {
	if len(raw) == 0 {
		return nil
	}
	var m datatypes.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
