// Package report turns a program index into prose with a language model.
package report

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/mayflower/rpg-explainer/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("report").Funcs(template.FuncMap{
	"list":   list,
	"params": params,
}).ParseFS(templateFS, "templates/*.tmpl"))

// SystemPrompt frames every request.
const SystemPrompt = "You are a senior IBM i / RPGLE architect. Provide clear, technical explanations."

var (
	// ErrNoAPIKey is returned when no API key is configured for the model.
	ErrNoAPIKey = errors.New("no API key configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Generator produces text for a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Source is the raw text of one analyzed member.
type Source struct {
	Path string
	Text string
}

// Issue is a parse problem with one member.
type Issue struct {
	Path    string
	Message string
}

// Reporter renders prompts and sends them to a Generator.
type Reporter struct {
	gen Generator
}

// New returns a Reporter backed by gen.
func New(gen Generator) *Reporter {
	return &Reporter{gen: gen}
}

// Program explains a whole program. sources may be empty.
func (r *Reporter) Program(ctx context.Context, idx *model.ProgramIndex, sources []Source) (string, error) {
	data, err := idx.JSON(2)
	if err != nil {
		return "", fmt.Errorf("encoding index: %w", err)
	}
	prompt, err := render("summary.tmpl", struct {
		IndexJSON string
		Sources   []Source
	}{string(data), sources})
	if err != nil {
		return "", err
	}
	return r.generate(ctx, SystemPrompt, prompt)
}

// Procedure explains one procedure given its source text.
func (r *Reporter) Procedure(ctx context.Context, p model.Procedure, source string) (string, error) {
	returns := ""
	if p.Returns != nil {
		returns = *p.Returns
	}
	prompt, err := render("procedure.tmpl", struct {
		model.Procedure
		Returns string
		Source  string
	}{p, returns, source})
	if err != nil {
		return "", err
	}
	return r.generate(ctx, SystemPrompt, prompt)
}

// Quick returns a short summary of a program.
func (r *Reporter) Quick(ctx context.Context, idx *model.ProgramIndex) (string, error) {
	data, err := idx.JSON(2)
	if err != nil {
		return "", fmt.Errorf("encoding index: %w", err)
	}
	prompt, err := render("quick.tmpl", struct{ IndexJSON string }{string(data)})
	if err != nil {
		return "", err
	}
	return r.generate(ctx, "", prompt)
}

func (r *Reporter) generate(ctx context.Context, system, prompt string) (string, error) {
	out, err := r.gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// AppendIssues adds a Parse Issues section to a report.
func AppendIssues(report string, issues []Issue) string {
	if len(issues) == 0 {
		return report
	}
	var b strings.Builder
	b.WriteString(report)
	b.WriteString("\n\n## Parse Issues\n\nThe following files had parsing issues:\n\n")
	for _, is := range issues {
		fmt.Fprintf(&b, "- **%s**: %s\n", is.Path, is.Message)
	}
	return b.String()
}

// WriteStats prints the summary shown when no model is used.
func WriteStats(w io.Writer, idx *model.ProgramIndex, issues []Issue) error {
	s := idx.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %d source file(s)\n", s.Files)
	fmt.Fprintf(&b, "  Procedures: %d\n", s.Procedures)
	fmt.Fprintf(&b, "  File definitions: %d\n", s.FileDefs)
	if len(issues) > 0 {
		b.WriteString("\nParse Issues:\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "  - %s: %s\n", is.Path, is.Message)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

func list(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func params(ps []model.Parameter) string {
	if len(ps) == 0 {
		return "None"
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		typ := "unknown"
		if p.Type != nil {
			typ = *p.Type
		}
		out[i] = p.Name + ": " + typ
	}
	return strings.Join(out, ", ")
}
