package rag

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// languageByExt maps a lower-cased file extension to its language.
var languageByExt = map[string]models.Language{
	".py":   models.LanguagePython,
	".js":   models.LanguageJavaScript,
	".jsx":  models.LanguageJavaScript,
	".ts":   models.LanguageTypeScript,
	".tsx":  models.LanguageTypeScript,
	".java": models.LanguageJava,
	".md":   models.LanguageMarkdown,
	".txt":  models.LanguageText,
	".json": models.LanguageOther,
	".yaml": models.LanguageOther,
	".yml":  models.LanguageOther,
	".xml":  models.LanguageOther,
	".html": models.LanguageOther,
	".css":  models.LanguageOther,
}

// filterPatterns lists the file globs each filter accepts.
var filterPatterns = map[models.LanguageFilter]string{
	models.FilterAll:        "**.{py,js,jsx,ts,tsx,java,md,txt,json,yaml,yml,xml,html,css}",
	models.FilterPython:     "**.py",
	models.FilterJavaScript: "**.{js,jsx,ts,tsx}",
	models.FilterTypeScript: "**.{ts,tsx}",
	models.FilterJava:       "**.java",
	models.FilterMarkdown:   "**.md",
	models.FilterText:       "**.txt",
}

// DefaultExcludes are directory globs never descended into.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/__MACOSX/**",
}

// LanguageOf returns the language of a file from its extension, and false
// when the extension is not supported.
func LanguageOf(name string) (models.Language, bool) {
	lang, ok := languageByExt[strings.ToLower(path.Ext(name))]
	return lang, ok
}

// ParseLanguageFilter accepts a filter name in any case. An empty name means
// FilterAll.
func ParseLanguageFilter(s string) (models.LanguageFilter, error) {
	f := models.LanguageFilter(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return models.FilterAll, nil
	}
	if _, ok := filterPatterns[f]; !ok {
		return "", fmt.Errorf("unknown language filter %q", s)
	}
	return f, nil
}

// compileFilter compiles the glob for a language filter. Matching is case
// insensitive on the extension, so callers match against a lower-cased path.
func compileFilter(f models.LanguageFilter) (glob.Glob, error) {
	pattern, ok := filterPatterns[f]
	if !ok {
		return nil, fmt.Errorf("unknown language filter %q", f)
	}
	return glob.Compile(pattern, '/')
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
