package rag

import "strings"

const DefaultChunkLength = 800

type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ChunkText packs sentences greedily into chunks of at most maxLength runes.
// A sentence longer than maxLength is cut at exact rune boundaries. The
// output depends only on the input.
func ChunkText(text string, maxLength int) []Chunk {
	if maxLength <= 0 {
		maxLength = DefaultChunkLength
	}
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}

	var chunks []Chunk
	push := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Content: s})
	}

	current := ""
	for _, sentence := range splitSentences(normalized) {
		runes := []rune(sentence)
		if len(runes) > maxLength {
			push(current)
			current = ""
			for i := 0; i < len(runes); i += maxLength {
				end := i + maxLength
				if end > len(runes) {
					end = len(runes)
				}
				push(string(runes[i:end]))
			}
			continue
		}

		joined := sentence
		if current != "" {
			joined = current + " " + sentence
		}
		if runeLen(joined) > maxLength {
			push(current)
			current = sentence
		} else {
			current = joined
		}
	}
	push(current)
	return chunks
}

// splitSentences breaks single-spaced text after '.', '!' or '?' followed
// by a space.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] != ' ' {
			continue
		}
		switch s[i-1] {
		case '.', '!', '?':
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
