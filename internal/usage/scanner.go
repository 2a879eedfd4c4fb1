package usage

import (
	"strings"

	"github.com/ppiankov/tokenatlas/internal/model"
)

// FileHits maps token paths to their matches within one file, in line order
type FileHits map[string][]model.UsageMatch

// delimiters end a candidate word. Dots, dashes and hashes are word
// characters so custom properties, dotted paths and hex colors stay whole.
var delimiters = func() [256]bool {
	var d [256]bool
	for _, c := range []byte(" \t\r\n;:,(){}[]\"'`<>=+*!?|&^~/\\") {
		d[c] = true
	}
	return d
}()

// ScanContent matches every line of content against the signature set.
// Each line is split into words once and every word is a single map lookup.
func ScanContent(content string, sigs *Signatures) FileHits {
	hits := make(FileHits)
	for lineNo := 1; ; lineNo++ {
		line, rest, found := strings.Cut(content, "\n")
		scanLine(strings.TrimSuffix(line, "\r"), lineNo, sigs, hits)
		if !found {
			break
		}
		content = rest
	}
	return hits
}

func scanLine(line string, lineNo int, sigs *Signatures, hits FileHits) {
	start := -1
	for i := 0; i <= len(line); i++ {
		if i < len(line) && !delimiters[line[i]] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}

		word, offset := trimDots(line[start:i], start)
		start = -1
		if word == "" {
			continue
		}

		for _, path := range sigs.Lookup(word) {
			m := model.UsageMatch{
				Line:        lineNo,
				LineContent: line,
				Property:    declarationFor(line, offset, word),
			}
			if !containsMatch(hits[path], m) {
				hits[path] = append(hits[path], m)
			}
		}
	}
}

// trimDots drops sentence punctuation and class-selector dots around a word
func trimDots(word string, offset int) (string, int) {
	for strings.HasPrefix(word, ".") {
		word = word[1:]
		offset++
	}
	return strings.TrimRight(word, "."), offset
}

// declarationFor names the declaration a match sits in: the identifier before
// the nearest colon to its left (color, backgroundColor, --alias). Without
// one the matched word itself is used.
func declarationFor(line string, offset int, word string) string {
	colon := strings.LastIndexByte(line[:offset], ':')
	if colon < 0 {
		return word
	}

	end := colon
	for end > 0 && isSpaceOrQuote(line[end-1]) {
		end--
	}
	begin := end
	for begin > 0 && isIdentByte(line[begin-1]) {
		begin--
	}
	if begin == end {
		return word
	}
	return line[begin:end]
}

func isSpaceOrQuote(b byte) bool {
	return b == ' ' || b == '\t' || b == '"' || b == '\'' || b == '`'
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func containsMatch(matches []model.UsageMatch, m model.UsageMatch) bool {
	for i := len(matches) - 1; i >= 0 && matches[i].Line == m.Line; i-- {
		if matches[i].Property == m.Property {
			return true
		}
	}
	return false
}
