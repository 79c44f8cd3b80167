package document

import "strings"

const previewLimit = 100

// Preview returns the first line of content, cut at 100 runes.
func Preview(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	r := []rune(line)
	if len(r) > previewLimit {
		return string(r[:previewLimit]) + "..."
	}
	return line
}

// Matches reports whether the name or content contains query, ignoring case.
// An empty query matches everything.
func (d Document) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.Name), q) || strings.Contains(strings.ToLower(d.Content), q)
}
