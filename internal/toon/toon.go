// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/railscope/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts an AppMap into TOON format.
func Encode(am *model.AppMap) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("app: %s", encodeValue(am.App)))
	parts = append(parts, fmt.Sprintf("scanned: %d", am.FilesScanned))
	parts = append(parts, fmt.Sprintf("failed: %d", am.FilesFailed))

	var endpointRows [][]string
	for i := range am.Endpoints {
		ep := &am.Endpoints[i]
		endpointRows = append(endpointRows, []string{
			ep.Request,
			ep.Controller,
			ep.Action,
			strings.Join(ep.Params, " "),
			strings.Join(ep.Headers, " "),
			strings.Join(ep.Response, " "),
			ep.Error,
		})
	}
	parts = append(parts, formatTabular("endpoints",
		[]string{"request", "controller", "action", "params", "headers", "response", "error"}, endpointRows))

	var declRows [][]string
	for i := range am.Declarations {
		d := &am.Declarations[i]
		declRows = append(declRows, []string{
			d.Name,
			string(d.Kind),
			fmt.Sprintf("%d", d.Methods),
			fmt.Sprintf("%.4f", d.Rank),
		})
	}
	parts = append(parts, formatTabular("declarations", []string{"name", "kind", "methods", "rank"}, declRows))

	var depRows [][]string
	for i := range am.Dependencies {
		d := &am.Dependencies[i]
		depRows = append(depRows, []string{d.Source, d.Target, d.Kind})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "kind"}, depRows))

	if len(am.Failures) > 0 {
		var failRows [][]string
		for i := range am.Failures {
			f := &am.Failures[i]
			failRows = append(failRows, []string{f.File, fmt.Sprintf("%d", f.Line), f.Message})
		}
		parts = append(parts, formatTabular("failures", []string{"file", "line", "message"}, failRows))
	}

	if len(am.Warnings) > 0 {
		var warnRows [][]string
		for _, w := range am.Warnings {
			warnRows = append(warnRows, []string{w})
		}
		parts = append(parts, formatTabular("warnings", []string{"message"}, warnRows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
