package notebook

import "strings"

// Preprocess trims text and collapses each whitespace run to one space before indexing.
func Preprocess(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
