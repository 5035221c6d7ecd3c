// Package explain is the RAG Explainer (C8): turns a ranked match into a
// narrative explanation, grounded in the researcher's own documents, by
// prompting an LLM and parsing its fixed-format response.
package explain

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/altitut/fundingmatch/internal/llmclient"
	"github.com/altitut/fundingmatch/internal/models"
)

// Explainer generates match explanations via an LLM backend.
type Explainer struct {
	LLM *llmclient.Client
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func joinTop(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}

// buildPrompt constructs the fixed-section prompt: user fields, opportunity
// fields, and the user's documents grouped by filename heuristic.
func buildPrompt(profile models.ResearcherProfile, match models.Match, docs []models.Document) string {
	var proposals, papers, other []string
	for _, d := range docs {
		switch classifyDocName(d.Name) {
		case "proposal":
			proposals = append(proposals, d.Name)
		case "paper":
			papers = append(papers, d.Name)
		default:
			other = append(other, d.Name)
		}
	}

	listOrNone := func(items []string) string {
		if len(items) == 0 {
			return "None"
		}
		return joinTop(items, 5)
	}

	var awards []string
	awards = append(awards, profile.Awards...)

	return fmt.Sprintf(`You are an expert grant consultant helping researchers match with funding opportunities.

USER PROFILE:
- Name: %s
- Research Interests: %s
- Awards: %s
- Experience Summary: %s
- Key Skills: %s

FUNDING OPPORTUNITY:
- Title: %s
- Agency: %s
- Description: %s
- Keywords: %s
- Deadline: %s
- URL: %s

USER'S AVAILABLE DOCUMENTS:
- Proposals: %s
- Research Papers: %s
- Other Documents: %s

Please provide:
1. A brief explanation (2-3 sentences) of why this funding opportunity is a good match for the user's profile
2. List 2-3 specific documents from the user's portfolio that could be reused, explaining exactly how each document's content relates to this opportunity
3. Concrete next steps the user should take to apply

Format your response EXACTLY as follows:
MATCH EXPLANATION:
[Your 2-3 sentence explanation here]

REUSABLE CONTENT:
- [Exact document filename from the list above]: [Specific explanation of how this document's research/methods/results can be adapted for this opportunity]
- [Another exact document filename]: [Specific explanation of relevant sections or content that applies]

NEXT STEPS:
1. Review solicitation requirements: [Specific action]
2. Prepare application materials: [Specific action]
3. Submit proposal: [Specific action with timeline if mentioned]
`,
		profile.Name,
		joinTop(profile.ResearchInterests, 10),
		joinTop(awards, 3),
		clip(strings.Join(profile.Experience, " "), 300),
		clip(strings.Join(profile.Skills, ", "), 200),
		match.OpportunityTitle,
		match.Agency,
		match.Description,
		joinTop(match.Keywords, 10),
		match.Deadline,
		match.URL,
		listOrNone(proposals),
		listOrNone(papers),
		listOrNone(other),
	)
}

// classifyDocName groups a document by filename heuristic: the same rule
// the profile builder uses, so a document is always grouped consistently
// wherever it's listed.
func classifyDocName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "proposal") || strings.Contains(lower, "sbir") || strings.Contains(lower, "nsf"):
		return "proposal"
	case strings.Contains(lower, "paper") || strings.Contains(lower, "journal") || strings.Contains(lower, ".pdf"):
		return "paper"
	default:
		return "other"
	}
}

func fallbackExplanation(match models.Match, err error) models.Match {
	log.Printf("explain: generation failed for %s, returning fallback: %v", match.OpportunityID, err)
	match.Explanation = "Unable to generate detailed explanation"
	match.AlignmentReasons = []string{"This opportunity matches your research area"}
	match.NextSteps = []string{"Review the opportunity details", "Check eligibility requirements"}
	return match
}

// Explain generates an explanation for why opportunity (already ranked as
// match) suits profile, resolving REUSABLE CONTENT references against docs,
// and returns match with its Explanation/AlignmentReasons/ReusableContent/
// NextSteps fields filled in. On any LLM failure it returns a conservative
// fallback rather than propagating the error, matching the
// caller-never-raises contract.
func (e *Explainer) Explain(ctx context.Context, profile models.ResearcherProfile, match models.Match, docs []models.Document) models.Match {
	prompt := buildPrompt(profile, match, docs)

	resp, err := e.LLM.Generate(ctx, prompt, false)
	if err != nil {
		return fallbackExplanation(match, err)
	}

	return parseExplanation(match, resp, docs)
}

func parseExplanation(result models.Match, text string, docs []models.Document) models.Match {
	result.Explanation = ""
	result.AlignmentReasons = nil
	result.ReusableContent = nil
	result.NextSteps = nil

	sections := strings.Split(text, "\n\n")
	currentSection := ""

	for _, raw := range sections {
		section := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(section, "MATCH EXPLANATION:"):
			explanation := strings.TrimSpace(strings.TrimPrefix(section, "MATCH EXPLANATION:"))
			result.Explanation = explanation
			result.AlignmentReasons = append(result.AlignmentReasons, splitSentences(explanation)...)
			currentSection = "explanation"

		case strings.HasPrefix(section, "REUSABLE CONTENT:"):
			currentSection = "reusable"
			lines := strings.Split(section, "\n")
			if len(lines) > 0 {
				lines = lines[1:]
			}
			for _, line := range lines {
				line = strings.TrimSpace(line)
				if !strings.HasPrefix(line, "-") {
					continue
				}
				parts := strings.SplitN(strings.Trim(line, "- "), ":", 2)
				if len(parts) != 2 {
					continue
				}
				docName := strings.TrimSpace(parts[0])
				reuseInfo := strings.TrimSpace(parts[1])

				matched := matchDocumentName(docName, docs)
				if matched == nil {
					continue
				}
				result.ReusableContent = append(result.ReusableContent, models.ReusableContent{
					Source:    matched.Name,
					Content:   extractSnippet(*matched),
					Relevance: reuseInfo,
				})
			}

		case strings.HasPrefix(section, "NEXT STEPS:"):
			currentSection = "steps"
			lines := strings.Split(section, "\n")
			if len(lines) > 0 {
				lines = lines[1:]
			}
			for _, line := range lines {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if !startsWithDigitOrDash(line) {
					continue
				}
				step := strings.TrimLeft(line, "0123456789.-) ")
				step = strings.TrimSpace(step)
				step = strings.ReplaceAll(step, "**", "")
				if step != "" {
					result.NextSteps = append(result.NextSteps, step)
				}
			}

		case currentSection == "explanation" && section != "":
			result.Explanation = strings.TrimSpace(result.Explanation + " " + section)
			result.AlignmentReasons = append(result.AlignmentReasons, splitSentences(section)...)
		}
	}

	result.Explanation = strings.TrimSpace(result.Explanation)

	if result.Explanation == "" {
		result.Explanation = "This opportunity aligns with your research profile."
		result.AlignmentReasons = []string{
			"Your expertise matches the technical requirements.",
			"Your research background is relevant to this solicitation.",
		}
	}

	if len(result.NextSteps) == 0 {
		result.NextSteps = []string{
			"Review the full solicitation at the provided URL",
			"Check eligibility requirements",
			"Contact the program officer with questions",
		}
	}

	if len(result.ReusableContent) == 0 && len(docs) > 0 {
		n := len(docs)
		if n > 2 {
			n = 2
		}
		for _, doc := range docs[:n] {
			result.ReusableContent = append(result.ReusableContent, models.ReusableContent{
				Source:    doc.Name,
				Content:   extractSnippet(doc),
				Relevance: "This document contains relevant research experience and methodologies that could strengthen your proposal.",
			})
		}
	}

	return result
}

func splitSentences(s string) []string {
	var out []string
	for _, sentence := range strings.Split(s, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if !strings.HasSuffix(sentence, ".") {
			sentence += "."
		}
		out = append(out, sentence)
	}
	return out
}

func startsWithDigitOrDash(line string) bool {
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "-") {
		return true
	}
	_, err := strconv.Atoi(string(line[0]))
	return err == nil
}

// matchDocumentName resolves a name mentioned in the LLM's response to one
// of the researcher's real documents: first by case-insensitive substring
// match in either direction, then by token overlap on tokens longer than 3
// characters.
func matchDocumentName(mentioned string, docs []models.Document) *models.Document {
	mentionedLower := strings.ToLower(mentioned)

	for i, doc := range docs {
		docLower := strings.ToLower(doc.Name)
		if strings.Contains(docLower, mentionedLower) || strings.Contains(mentionedLower, docLower) {
			return &docs[i]
		}
	}

	keywords := strings.Fields(mentionedLower)
	for i, doc := range docs {
		docLower := strings.ToLower(doc.Name)
		for _, kw := range keywords {
			if len(kw) > 3 && strings.Contains(docLower, kw) {
				return &docs[i]
			}
		}
	}

	return nil
}

// sectionHeaders are the document-body section names checked, in order, for
// a natural entry point into a snippet.
var sectionHeaders = []string{"abstract", "summary", "executive summary", "objectives", "overview", "introduction"}

// extractSnippet pulls a 200-300 character window out of doc.Text, preferring
// the region starting at one of sectionHeaders; otherwise the document
// prefix, trimmed to the nearest sentence boundary.
func extractSnippet(doc models.Document) string {
	content := doc.Text
	if content == "" {
		return fmt.Sprintf("Content from %s", doc.Name)
	}
	lower := strings.ToLower(content)

	for _, header := range sectionHeaders {
		idx := strings.Index(lower, header)
		if idx < 0 {
			continue
		}
		snippet := clip(content[idx:], 300)
		if len(snippet) > 250 {
			for i := 250; i < len(snippet); i++ {
				if strings.ContainsRune(".!?\n", rune(snippet[i])) {
					snippet = snippet[:i+1]
					break
				}
			}
		}
		return strings.TrimSpace(snippet)
	}

	snippet := clip(content, 250)
	if len(content) > 250 {
		limit := len(snippet)
		if limit > 250 {
			limit = 250
		}
		for i := 200; i < limit; i++ {
			if strings.ContainsRune(".!?\n", rune(snippet[i])) {
				snippet = snippet[:i+1]
				break
			}
		}
	}
	return strings.TrimSpace(snippet) + "..."
}
