// Package prompts builds the prompts sent for each assistant command.
package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxProjectFiles is how many files of a project are quoted in a project analysis prompt.
const MaxProjectFiles = 3

// ExplainCode asks for an explanation of a code selection written in language.
func ExplainCode(language, code string) string {
	return fmt.Sprintf("You are a code expert. Explain this %s code clearly and concisely:\n\n"+
		"```%s\n%s\n```\n\n"+
		"Provide:\n1. What the code does\n2. Key concepts used\n3. Potential improvements",
		language, language, code)
}

// ImproveFile asks for an improved version of a whole file. The model is told to answer with code only.
func ImproveFile(language, content string) string {
	return fmt.Sprintf("You are an expert %s developer.\n"+
		"IMPROVE this entire file. Make it cleaner, more efficient, add comments, fix bugs.\n"+
		"ONLY return the COMPLETE improved code (NO explanations, NO markdown):\n\n"+
		"```%s\n%s\n```",
		language, language, content)
}

// AnalyzeProject asks for an overview of a project. Only the first MaxProjectFiles files are quoted.
func AnalyzeProject(files []string) string {
	if len(files) > MaxProjectFiles {
		files = files[:MaxProjectFiles]
	}
	return "Analyze this project structure and files. Provide:\n" +
		"1. Project purpose\n2. Main technologies used\n3. Architecture overview\n4. Potential improvements\n\n" +
		"Project files:\n" + strings.Join(files, "\n") + "..."
}

// WithFileContext prefixes a chat message with the content of the file the user is looking at. An empty
// file leaves the message unchanged.
func WithFileContext(file, message string) string {
	if file == "" {
		return message
	}
	return fmt.Sprintf("Current file content:\n```\n%s\n```\n\nUser: %s", file, message)
}

// FencedCode wraps code in a fenced markdown block tagged with language.
func FencedCode(language, code string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}

// ProjectFile formats one file of a project for AnalyzeProject, truncating its content to at most limit bytes
// without splitting a UTF-8 sequence.
func ProjectFile(name, content string, limit int) string {
	if limit > 0 && len(content) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return fmt.Sprintf("--- File: %s ---\n%s", name, content)
}
