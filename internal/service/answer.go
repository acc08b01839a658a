package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/campaignkb/internal/domain"
)

const (
	summaryMaxRunes = 220
	noResultsAnswer = "No relevant passages found."
	answerHeader    = "Top relevant excerpts:"
)

// FormatAnswer renders hits, in the order given, as a list of located summaries.
func FormatAnswer(hits []domain.SearchHit) string {
	if len(hits) == 0 {
		return noResultsAnswer
	}

	var b strings.Builder
	b.WriteString(answerHeader)
	for _, h := range hits {
		b.WriteString("\n- ")
		b.WriteString(LocationLabel(h.Metadata))
		b.WriteString(": ")
		b.WriteString(Summarize(h.Text))
	}
	return b.String()
}

// LocationLabel names where an excerpt came from, e.g. "Session_04.pdf p3 (Session 4)".
// Session 0 is treated as no session.
func LocationLabel(meta domain.ChunkMetadata) string {
	label := fmt.Sprintf("%s p%d", meta.SourceFile, meta.Page)
	if meta.Session != nil && *meta.Session > 0 {
		label += fmt.Sprintf(" (Session %d)", *meta.Session)
	}
	return label
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Summarize flattens text onto one line and, when it is longer than 220
// characters, cuts it after the last sentence end inside that window.
// Without a sentence end the raw window is returned.
func Summarize(text string) string {
	text = lineBreaks.Replace(strings.TrimSpace(text))

	runes := []rune(text)
	if len(runes) <= summaryMaxRunes {
		return text
	}

	window := string(runes[:summaryMaxRunes])
	if i := strings.LastIndex(window, "."); i >= 0 {
		return window[:i+1]
	}
	return window
}

// TruncateAnswer shortens answer to at most max characters for chat replies.
func TruncateAnswer(answer string, max int) string {
	if max <= 0 {
		return answer
	}
	runes := []rune(answer)
	if len(runes) <= max {
		return answer
	}
	return string(runes[:max])
}
