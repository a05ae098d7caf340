// Package report renders an AppMap in the supported output formats.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/railscope/internal/model"
	"github.com/phobologic/railscope/internal/toon"
)

// Style definitions for the text report.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	labelStyle = lipgloss.NewStyle().
			Faint(true).
			Width(12)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"})
	valueStyle = lipgloss.NewStyle()
)

// Options controls rendering.
type Options struct {
	// Plain disables terminal styling in the text format.
	Plain bool
}

// Write renders am to w in format: text, toon, json or yaml.
func Write(w io.Writer, am *model.AppMap, format string, opts Options) error {
	switch format {
	case "", "text":
		_, err := io.WriteString(w, Text(am, opts))
		return err
	case "toon":
		_, err := fmt.Fprintln(w, toon.Encode(am))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(am)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(am); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// Text renders am as a human-readable report.
func Text(am *model.AppMap, opts Options) string {
	p := &printer{plain: opts.Plain}

	p.line(p.style(headerStyle, am.App))
	p.line(p.style(headerStyle, strings.Repeat("=", max(len(am.App), 8))))
	p.kv("Scanned", fmt.Sprintf("%d files", am.FilesScanned))
	p.kv("Failed", fmt.Sprintf("%d files", am.FilesFailed))
	p.line("")

	if len(am.Endpoints) > 0 {
		p.section(fmt.Sprintf("Endpoints (%d)", len(am.Endpoints)))
		for i := range am.Endpoints {
			ep := &am.Endpoints[i]
			p.line(fmt.Sprintf("  %s  %s#%s", p.style(headerStyle, ep.Request), ep.Controller, ep.Action))
			if ep.Error != "" {
				p.kv("  error", p.style(errorStyle, ep.Error))
				continue
			}
			p.list("  params", ep.Params)
			p.list("  headers", ep.Headers)
			p.list("  ivars", ep.InstanceVariables)
			p.list("  response", ep.Response)
		}
		p.line("")
	}

	if len(am.Declarations) > 0 {
		p.section(fmt.Sprintf("Declarations (%d)", len(am.Declarations)))
		for _, d := range am.Declarations {
			p.line(fmt.Sprintf("    %-40s %-10s %3d methods  %.4f", d.Name, d.Kind, d.Methods, d.Rank))
		}
		p.line("")
	}

	if len(am.Dependencies) > 0 {
		p.section(fmt.Sprintf("Dependencies (%d)", len(am.Dependencies)))
		for _, d := range am.Dependencies {
			p.line(fmt.Sprintf("    %s %s %s", d.Source, d.Kind, d.Target))
		}
		p.line("")
	}

	if len(am.Failures) > 0 {
		p.section(fmt.Sprintf("Failures (%d)", len(am.Failures)))
		for _, f := range am.Failures {
			loc := f.File
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.File, f.Line)
			}
			p.line(fmt.Sprintf("    %s  %s", loc, p.style(errorStyle, f.Message)))
		}
		p.line("")
	}

	if len(am.Warnings) > 0 {
		p.section(fmt.Sprintf("Warnings (%d)", len(am.Warnings)))
		for _, w := range am.Warnings {
			p.line("    " + w)
		}
		p.line("")
	}

	return p.b.String()
}

type printer struct {
	b     strings.Builder
	plain bool
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *printer) line(s string) {
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) section(title string) {
	p.line("  " + p.style(headerStyle, title))
}

func (p *printer) kv(label, value string) {
	if p.plain {
		p.line(fmt.Sprintf("    %-12s%s", label+":", value))
		return
	}
	p.line("    " + labelStyle.Render(label+":") + valueStyle.Render(value))
}

func (p *printer) list(label string, items []string) {
	if len(items) == 0 {
		return
	}
	p.kv(label, strings.Join(items, ", "))
}
