package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloo-solutions/zenithvault/internal/domain"
)

// Prompt is the composed input of one generation call.
type Prompt struct {
	System string
	User   string
}

// String flattens the prompt for providers without a separate system role.
func (p Prompt) String() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

const defaultSystemPrompt = `You are the Zenith Vault support assistant.
Answer the customer's question using the knowledge base sources below.
Every source starts with a marker such as [source:12]. When a sentence relies on a source, end it with that source's marker.
Do not invent markers and do not cite sources you did not use.
If the sources do not answer the question, say that the knowledge base has no answer and give a brief, general reply without markers.`

const defaultMaxSourceChars = 4000

var (
	citationMarker   = regexp.MustCompile(`(?i)\[\s*source\s*:\s*(\d+)\s*\]`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	repeatedSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// sourceMarker is the tag that identifies an entry inside the prompt.
func sourceMarker(id int64) string {
	return "[source:" + strconv.FormatInt(id, 10) + "]"
}

// buildPrompt assembles the grounding prompt: case context first, then the
// sources in ranked order, then the question.
func buildPrompt(system, question string, caseCtx *domain.CaseContext, results []domain.RetrievalResult, maxSourceChars int) Prompt {
	var b strings.Builder

	if !caseCtx.IsEmpty() {
		b.WriteString("Service case context:\n")
		if caseCtx.Subject != "" {
			fmt.Fprintf(&b, "Subject: %s\n", strings.TrimSpace(caseCtx.Subject))
		}
		if caseCtx.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(caseCtx.Description))
		}
		b.WriteString("\n")
	}

	if len(results) == 0 {
		b.WriteString("Knowledge base sources: none matched this question.\n\n")
	} else {
		b.WriteString("Knowledge base sources:\n\n")
		for _, r := range results {
			fmt.Fprintf(&b, "%s %s\n%s\n\n", sourceMarker(r.Entry.ID), r.Entry.Title, truncateRunes(r.Entry.Content, maxSourceChars))
		}
	}

	fmt.Fprintf(&b, "Question: %s", strings.TrimSpace(question))

	return Prompt{System: system, User: b.String()}
}

// extractCitations returns the supplied ids the response cites, in order of
// first appearance, and the response text with the markers removed. Markers
// naming ids that were not supplied are dropped. When the response cites
// nothing every supplied id is returned.
func extractCitations(response string, supplied []int64) (string, []int64) {
	if len(supplied) == 0 {
		return tidyResponse(citationMarker.ReplaceAllString(response, "")), []int64{}
	}

	known := make(map[int64]bool, len(supplied))
	for _, id := range supplied {
		known[id] = true
	}

	seen := map[int64]bool{}
	cited := []int64{}
	for _, m := range citationMarker.FindAllStringSubmatch(response, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}

	text := tidyResponse(citationMarker.ReplaceAllString(response, ""))
	if len(cited) == 0 {
		all := make([]int64, len(supplied))
		copy(all, supplied)
		return text, all
	}
	return text, cited
}

func tidyResponse(s string) string {
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = repeatedSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncateRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
