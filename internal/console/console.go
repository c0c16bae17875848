// Package console renders the interactive session: bordered panels for
// notices and answers, tables for the status and traffic views, and
// optional markdown rendering of backend answers.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

// DefaultWidth is the wrap width for answers.
const DefaultWidth = 80

// Prompt is shown before every question.
const Prompt = "Ask a question about your logs (or 'exit'): "

var (
	yellow = lipgloss.Color("3")
	cyan   = lipgloss.Color("6")
	faint  = lipgloss.Color("8")
)

// Options controls console rendering.
type Options struct {
	// Markdown renders answers through glamour.
	Markdown bool
	// Width is the wrap width; DefaultWidth when zero.
	Width int
}

// Console writes the session output to a single writer.
type Console struct {
	out      io.Writer
	width    int
	markdown *glamour.TermRenderer

	panel  lipgloss.Style
	title  lipgloss.Style
	prompt lipgloss.Style
	status lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	border lipgloss.Style
}

// New creates a console writing to out. The color profile is detected from
// out, so a pipe or buffer gets plain text with box borders.
func New(out io.Writer, opts Options) *Console {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	r := lipgloss.NewRenderer(out)

	c := &Console{
		out:   out,
		width: opts.Width,
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(yellow).
			Padding(0, 1),
		title:  r.NewStyle().Bold(true).Foreground(yellow),
		prompt: r.NewStyle().Bold(true).Foreground(cyan),
		status: r.NewStyle().Foreground(faint).Italic(true),
		header: r.NewStyle().Bold(true).Foreground(yellow).Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
		border: r.NewStyle().Foreground(yellow),
	}

	if opts.Markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(markdownStyle(r)),
			glamour.WithColorProfile(r.ColorProfile()),
			glamour.WithWordWrap(opts.Width-4),
		)
		if err == nil {
			c.markdown = renderer
		}
	}
	return c
}

// markdownStyle picks the glamour style for the writer r is bound to.
func markdownStyle(r *lipgloss.Renderer) string {
	if r.ColorProfile() == termenv.Ascii {
		return styles.NoTTYStyle
	}
	if r.HasDarkBackground() {
		return styles.DarkStyle
	}
	return styles.LightStyle
}

// Banner announces the loaded snapshot.
func (c *Console) Banner(source string, records int) {
	c.Panel(fmt.Sprintf("NGINX Log Chat\n%d requests loaded from %s\nType 'exit' or 'quit' to leave, '/history' to list your questions.",
		records, source))
}

// Goodbye closes the session.
func (c *Console) Goodbye() {
	c.Panel("Goodbye!")
}

// Prompt writes the question prompt without a trailing newline.
func (c *Console) Prompt() {
	fmt.Fprint(c.out, "\n"+c.prompt.Render(Prompt))
}

// Status writes a transient progress line.
func (c *Console) Status(msg string) {
	fmt.Fprintln(c.out, c.status.Render(msg))
}

// Panel writes text inside a yellow rounded border.
func (c *Console) Panel(text string) {
	style := c.panel
	if lipgloss.Width(text) > c.width-4 {
		style = style.Width(c.width - 2)
	}
	fmt.Fprintln(c.out, style.Render(text))
}

// TitledPanel writes a panel whose first line is a bold title.
func (c *Console) TitledPanel(title, body string) {
	c.Panel(c.title.Render(title) + "\n" + body)
}

// Corrected shows the question after spelling correction.
func (c *Console) Corrected(text string) {
	c.TitledPanel("Corrected input", text)
}

// Anomalies shows the anomaly set as indented JSON, or a notice when empty.
func (c *Console) Anomalies(a stats.AnomalySet) error {
	if a.Empty() {
		c.Panel("No major anomalies detected")
		return nil
	}
	body, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode anomalies: %w", err)
	}
	c.TitledPanel("Anomalies", string(body))
	return nil
}

// Tables writes the status, client and URL tables.
func (c *Console) Tables(t stats.Tables) {
	c.countTable("Status Codes", "Status Code", "Count", t.StatusCounts)
	c.countTable(fmt.Sprintf("Top %d IPs", stats.TableTopN), "IP", "Requests", t.TopIPs)
	c.countTable(fmt.Sprintf("Top %d URLs", stats.TableTopN), "URL", "Requests", t.TopURLs)
}

func (c *Console) countTable(title, keyHeader, countHeader string, counts stats.Counts) {
	rows := make([][]string, 0, len(counts))
	for _, e := range counts {
		rows = append(rows, []string{e.Key, strconv.Itoa(e.N)})
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(c.border).
		Headers(keyHeader, countHeader).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := c.cell
			if row == table.HeaderRow {
				style = c.header
			}
			if col == 1 {
				style = style.Align(lipgloss.Right)
			}
			return style
		})

	fmt.Fprintln(c.out, c.title.Render(title))
	fmt.Fprintln(c.out, tbl.Render())
}

// Answer writes the backend answer, rendered as markdown when enabled.
func (c *Console) Answer(text string) {
	c.Panel("AI: " + c.renderMarkdown(text))
}

// History lists earlier questions, oldest first.
func (c *Console) History(questions []string) {
	if len(questions) == 0 {
		c.Panel("No questions asked yet.")
		return
	}
	var b strings.Builder
	for i, q := range questions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, q)
	}
	c.TitledPanel("History", b.String())
}

// renderMarkdown falls back to the raw text when rendering fails or panics.
func (c *Console) renderMarkdown(text string) (result string) {
	if c.markdown == nil || text == "" {
		return text
	}
	defer func() {
		if r := recover(); r != nil {
			result = text
		}
	}()

	rendered, err := c.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}
