package engine

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RenderParams substitutes parameters into script text. It never fails:
// unmatched parameters are left alone and blank values are skipped.
//
// For each non-blank parameter, four passes apply in fixed order:
//  1. explicit ${KEY} placeholders (case-sensitive)
//  2. language-idiomatic "read input named KEY" calls, replaced with the
//     value as a string literal (case-insensitive)
//  3. YOUR_KEY placeholder tokens (case-insensitive)
//  4. assignments of KEY to an empty string literal, with the value
//     inserted into the existing quotes (case-sensitive)
//
// Parameters apply independently; keys that share a prefix (NAME, NAME2)
// must not interfere, which is why the token passes anchor on word
// boundaries.
func RenderParams(script, language string, params map[string]string) string {
	if len(params) == 0 {
		return script
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(params[key]) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]

		script = strings.ReplaceAll(script, "${"+key+"}", value)
		script = replaceInputCalls(script, language, key, value)
		script = replacePlaceholderTokens(script, key, value)
		script = fillEmptyAssignments(script, key, value)
	}

	return script
}

// replaceInputCalls rewrites interactive input calls whose prompt names the
// key into a string literal, so scripts written for a terminal run headless.
func replaceInputCalls(script, language, key, value string) string {
	var fn string
	switch canonicalLanguage(language) {
	case "python":
		fn = "input"
	case "javascript":
		fn = "prompt"
	default:
		return script
	}

	pattern := `(?i)\b` + fn + `\s*\(\s*(?:"[^"\n]*` + regexp.QuoteMeta(key) + `[^"\n]*"|'[^'\n]*` + regexp.QuoteMeta(key) + `[^'\n]*')\s*\)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return script
	}

	return re.ReplaceAllLiteralString(script, strconv.Quote(value))
}

// replacePlaceholderTokens rewrites YOUR_<KEY> tokens case-insensitively.
// The trailing word boundary keeps YOUR_NAME from eating YOUR_NAME2.
func replacePlaceholderTokens(script, key, value string) string {
	re, err := regexp.Compile(`(?i)\bYOUR_` + regexp.QuoteMeta(key) + `\b`)
	if err != nil {
		return script
	}
	return re.ReplaceAllLiteralString(script, value)
}

// fillEmptyAssignments inserts the value into KEY = "" style assignments,
// preserving the existing quote character.
func fillEmptyAssignments(script, key, value string) string {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(key) + `(\s*=\s*)(""|'')`)
	if err != nil {
		return script
	}

	return re.ReplaceAllStringFunc(script, func(match string) string {
		sub := re.FindStringSubmatch(match)
		quote := string(sub[2][0])
		return key + sub[1] + quote + value + quote
	})
}

func canonicalLanguage(language string) string {
	if canonical, ok := runtimeAliases[language]; ok {
		return canonical
	}
	return language
}
