package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultWindowWords  = 220
	DefaultOverlapWords = 40
)

// Chunk is one overlapping word window over a document. CharStart/CharEnd
// are byte offsets into the original text, so evidence spans and chunks
// share one coordinate system.
type Chunk struct {
	Index     int
	Text      string
	CharStart int
	CharEnd   int
	WordCount int
}

type word struct {
	start int
	end   int
}

// Split windows text into overlapping word chunks. Offsets always refer to
// the untrimmed input. Degenerate sizes fall back to defaults; an overlap
// at or above the window size is clamped so the walk always advances.
func Split(text string, windowWords, overlapWords int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if windowWords <= 0 {
		windowWords = DefaultWindowWords
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= windowWords {
		overlapWords = windowWords / 2
	}

	words := scanWords(text)
	if len(words) == 0 {
		return nil
	}

	step := windowWords - overlapWords
	out := make([]Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + windowWords
		if end > len(words) {
			end = len(words)
		}
		charStart := words[start].start
		charEnd := words[end-1].end
		out = append(out, Chunk{
			Index:     len(out),
			Text:      text[charStart:charEnd],
			CharStart: charStart,
			CharEnd:   charEnd,
			WordCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return out
}

func scanWords(text string) []word {
	var words []word
	inWord := false
	start := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				words = append(words, word{start: start, end: i})
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		words = append(words, word{start: start, end: len(text)})
	}
	return words
}
