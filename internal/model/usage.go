package model

// UsageMatch is a single line referencing a token
type UsageMatch struct {
	Line        int    `json:"line"`        // 1-based line number
	LineContent string `json:"lineContent"` // Raw line text
	Property    string `json:"property"`    // Declaration or selector the reference sits in
}

// UsageEntry groups the matches of one token within one component
type UsageEntry struct {
	ComponentPath     string       `json:"componentPath"`               // Slash-separated path relative to the corpus root
	ComponentTitle    string       `json:"componentTitle"`              // Display title derived from the file name
	ComponentCategory string       `json:"componentCategory,omitempty"` // Display name of the enclosing directory
	Matches           []UsageMatch `json:"matches"`                     // Matches in encounter order
}

// UsageIndex maps token paths to their consumption sites
type UsageIndex map[string][]UsageEntry

// Count returns the total number of matches recorded for a path
func (u UsageIndex) Count(path string) int {
	n := 0
	for _, e := range u[path] {
		n += len(e.Matches)
	}
	return n
}
