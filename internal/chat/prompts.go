package chat

import "fmt"

// StudioKind names a generated study artifact.
type StudioKind string

const (
	StudioSummary    StudioKind = "summary"
	StudioFAQ        StudioKind = "faq"
	StudioStudyGuide StudioKind = "study-guide"
	StudioTimeline   StudioKind = "timeline"
)

// StudioKinds lists the kinds Generate accepts.
var StudioKinds = []StudioKind{StudioSummary, StudioFAQ, StudioStudyGuide, StudioTimeline}

// ParseStudioKind validates s as a StudioKind.
func ParseStudioKind(s string) (StudioKind, error) {
	for _, k := range StudioKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStudioKind, s)
}

const contextPromptTemplate = `Use the following sources to answer the user's question. If the answer is not in the sources, say so.

Cite your sources by referring to [[Source X]] at the end of the relevant sentences.
Use Markdown for formatting: **bold** for key concepts, lists for enumerations, and tables where useful to compare data.
For example: "This is a fact [[Source 1]]." or "According to [[Source 2]] this is true."

Sources:
%s

`

const suggestionsPrompt = "Based on the following content, generate 3-4 interesting and relevant questions that a user might want to ask to learn more about the topic. Return ONLY the questions, one per line:\n\n"

const summaryPrompt = `Create a comprehensive Briefing Doc from the following source material.

Structure it as follows:
# Briefing Doc
## Executive Summary
[Concise overview of the main topic]

## Key Themes
[Bulleted list of major themes with brief explanations]

## Key Insights & Facts
[Important details and data points]

## Conclusion
[Final synthesis]
`

const timelineInstruction = "\n\nExtract a timeline of key events with dates."

const studyGuidePrompt = "Create a study guide from the following text. Include key terms, discussion questions and a short quiz:\n\n"

const faqPrompt = "Generate a list of Frequently Asked Questions (FAQ) based on the following text:\n\n"

// DefaultQuestions are suggested when a notebook has no sources yet.
var DefaultQuestions = []string{
	"Summarize the main points",
	"What are the key themes?",
	"Create a study guide",
}

// studioPrompt returns the full prompt for kind over the (already truncated) text.
func studioPrompt(kind StudioKind, text string) (string, error) {
	switch kind {
	case StudioSummary:
		return summaryPrompt + "\nContent:\n" + text, nil
	case StudioTimeline:
		return summaryPrompt + timelineInstruction + "\n\nContent:\n" + text, nil
	case StudioStudyGuide:
		return studyGuidePrompt + text, nil
	case StudioFAQ:
		return faqPrompt + text, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownStudioKind, kind)
	}
}
