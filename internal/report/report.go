package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"jansahay/internal/domain"
	"jansahay/internal/eligibility"
)

// Delimiter separates printed documents.
const Delimiter = "----------------------------------"

// Printer writes pipeline outcomes to a console.
type Printer struct {
	w       io.Writer
	ok      lipgloss.Style
	warn    lipgloss.Style
	heading lipgloss.Style
	faint   lipgloss.Style
}

// New returns a Printer for w. Styles degrade to plain text when w is not a terminal.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		ok:      r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		heading: r.NewStyle().Bold(true),
		faint:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// NoEligible reports the empty filter outcome.
func (p *Printer) NoEligible() error {
	_, err := fmt.Fprintln(p.w, p.warn.Render("No eligible schemes found"))
	return err
}

// EligibleCount prints the size of the eligible set.
func (p *Printer) EligibleCount(n int) error {
	_, err := fmt.Fprintln(p.w, p.ok.Render(fmt.Sprintf("Eligible schemes: %d", n)))
	return err
}

// Documents prints each retrieved document preceded by the delimiter line.
func (p *Printer) Documents(results []domain.SearchResult, lexical bool) error {
	title := "ELIGIBLE & RELEVANT SCHEMES:"
	if lexical {
		title += " " + p.faint.Render("(keyword match)")
	}
	if _, err := fmt.Fprintf(p.w, "\n%s\n\n", p.heading.Render(title)); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(p.w, "%s\n%s\n", Delimiter, r.Document.Text); err != nil {
			return err
		}
	}
	return nil
}

// Decisions lists every scheme with its eligibility verdict.
func (p *Printer) Decisions(decisions []eligibility.Decision) error {
	for _, d := range decisions {
		var line string
		if d.Eligible() {
			line = p.ok.Render("eligible") + "  " + d.Scheme.SchemeName
		} else {
			line = p.warn.Render("rejected") + "  " + d.Scheme.SchemeName + " " + p.faint.Render("("+string(d.Reason)+")")
		}
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			return err
		}
	}
	return nil
}
