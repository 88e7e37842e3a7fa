package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jansahay/internal/domain"
	"jansahay/internal/service"
)

// Retriever is the TUI-facing subset of the retrieval pipeline.
type Retriever interface {
	Eligible(schemes []domain.SchemeRecord, user domain.UserProfile) []domain.SchemeRecord
	Retrieve(ctx context.Context, schemes []domain.SchemeRecord, user domain.UserProfile, query string, k int) (service.Result, error)
}

// Session is the catalog and profile every query runs against.
type Session struct {
	Schemes []domain.SchemeRecord
	Profile domain.UserProfile
	TopK    int
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	pipeline  Retriever
	session   Session
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.SearchResult
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a new TUI model over the schemes the session profile is eligible for.
func New(ctx context.Context, pipeline Retriever, session Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about schemes and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	n := len(pipeline.Eligible(session.Schemes, session.Profile))
	summary := fmt.Sprintf("Eligible schemes: %d of %d", n, len(session.Schemes))
	status := "Type to search."
	if n == 0 {
		status = "No eligible schemes found"
	}
	return Model{ctx: ctx, pipeline: pipeline, session: session, input: ti, viewport: vp, summary: summary, status: status}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m = m.search(q)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) search(q string) Model {
	res, err := m.pipeline.Retrieve(m.ctx, m.session.Schemes, m.session.Profile, q, m.session.TopK)
	switch {
	case err != nil:
		m.status = "Error: " + err.Error()
		m.results = nil
	case res.NoEligibleSchemes():
		m.status = "No eligible schemes found"
		m.results = nil
	default:
		m.status = fmt.Sprintf("Results for %q", q)
		if res.Lexical {
			m.status += " (keyword match)"
		}
		m.results = res.Documents
		m.lastQuery = q
	}
	m.cursor = 0
	return m
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Jan Sahay Scheme Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", m.cursor+1, len(m.results), r.Document.SchemeName, r.Score)
	return title + "\n\n" + highlightBestLine(r.Document.Text, m.lastQuery)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
)

// highlightBestLine emphasises the document line sharing the most words with query.
// Only the value after a "Label: " prefix is scored.
func highlightBestLine(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx, bestScore := -1, 0
	for i, l := range lines {
		value := l
		if _, after, ok := strings.Cut(l, ": "); ok {
			value = after
		}
		if score := tokenOverlapScore(qTokens, value); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return text
	}
	lines[bestIdx] = highlightStyle.Render(lines[bestIdx])
	return strings.Join(lines, "\n")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, line string) int {
	score := 0
	for t := range toTokenSet(line) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
