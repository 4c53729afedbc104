package services

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate replaces {{key}} placeholders with values from variables.
// Unknown keys are left untouched.
func RenderTemplate(template string, variables map[string]interface{}) string {
	if template == "" || len(variables) == 0 {
		return template
	}

	var b strings.Builder
	last := 0
	for _, loc := range placeholderRegex.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(template[last:loc[0]])
		if value, ok := variables[template[loc[2]:loc[3]]]; ok {
			b.WriteString(fmt.Sprint(value))
		} else {
			b.WriteString(template[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	b.WriteString(template[last:])
	return b.String()
}
