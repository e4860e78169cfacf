package pager

import "github.com/charmbracelet/lipgloss"

// Theme styles single-line fragments of the pager output.
type Theme struct {
	Highlight func(string) string
	Heading   func(string) string
	Label     func(string) string
	Prompt    func(string) string
	Notice    func(string) string
}

// DefaultTheme colours output with lipgloss. Styling is dropped
// automatically when the output is not a terminal.
func DefaultTheme() Theme {
	return Theme{
		Highlight: render(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)),
		Heading:   render(lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)),
		Label:     render(lipgloss.NewStyle().Foreground(lipgloss.Color("12"))),
		Prompt:    render(lipgloss.NewStyle().Foreground(lipgloss.Color("11"))),
		Notice:    render(lipgloss.NewStyle().Faint(true)),
	}
}

// render adapts a lipgloss style to the single-string Theme signature.
func render(st lipgloss.Style) func(string) string {
	return func(s string) string { return st.Render(s) }
}

// PlainTheme leaves every fragment unchanged.
func PlainTheme() Theme {
	identity := func(s string) string { return s }
	return Theme{
		Highlight: identity,
		Heading:   identity,
		Label:     identity,
		Prompt:    identity,
		Notice:    identity,
	}
}

func (t Theme) orPlain() Theme {
	plain := PlainTheme()
	if t.Highlight == nil {
		t.Highlight = plain.Highlight
	}
	if t.Heading == nil {
		t.Heading = plain.Heading
	}
	if t.Label == nil {
		t.Label = plain.Label
	}
	if t.Prompt == nil {
		t.Prompt = plain.Prompt
	}
	if t.Notice == nil {
		t.Notice = plain.Notice
	}
	return t
}
