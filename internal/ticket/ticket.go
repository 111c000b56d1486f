// Package ticket turns free-text issue references into links to an
// external ticket tracker.
package ticket

// Match is one tracker reference found in a piece of text.
type Match struct {
	Text  string
	Start int
	URL   string
}

// Span is one segment of annotated text. URL is empty for plain text.
type Span struct {
	Text string
	URL  string
}

// Integration finds tracker references in text. Implementations must
// return matches in order of appearance, non-overlapping.
type Integration interface {
	FindMatches(text string) []Match
}

// Noop is the integration used when a project has no tracker
// configured. It never matches anything.
type Noop struct{}

func (Noop) FindMatches(string) []Match { return nil }

// Annotate splits text into plain and linked spans using the given
// integration. Text between matches is emitted as a single unlinked
// span, so punctuation touching a match never becomes clickable. With
// no matches the whole text comes back as one unlinked span.
func Annotate(text string, integration Integration) []Span {
	if text == "" {
		return nil
	}

	matches := integration.FindMatches(text)
	if len(matches) == 0 {
		return []Span{{Text: text}}
	}

	spans := make([]Span, 0, 2*len(matches)+1)
	current := 0
	for _, match := range matches {
		if match.Start > current {
			spans = append(spans, Span{Text: text[current:match.Start]})
		}
		current = match.Start + len(match.Text)
		spans = append(spans, Span{Text: match.Text, URL: match.URL})
	}

	if current < len(text) {
		spans = append(spans, Span{Text: text[current:]})
	}

	return spans
}
