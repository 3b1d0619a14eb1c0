package jenkins

import (
	"sort"
	"strings"
)

// issuePatterns maps an issue category to the console substrings that
// indicate it. Matching is case-insensitive.
var issuePatterns = map[string][]string{
	"Compilation Error": {"error:", "compilation failed"},
	"Dependency Issue":  {"ModuleNotFoundError", "ImportError", "npm ERR", "pip install"},
	"Permission Error":  {"Permission denied", "access denied", "EACCES"},
	"Network Error":     {"Connection refused", "timeout", "network error"},
	"Build Tool Error":  {"maven", "gradle", "npm", "yarn"},
	"Test Failure":      {"FAILED", "AssertionError", "test failed"},
}

// AnalyzeConsole returns the issue categories found in console text,
// sorted and without duplicates.
func AnalyzeConsole(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for issue, patterns := range issuePatterns {
		for _, p := range patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				found = append(found, issue)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}
