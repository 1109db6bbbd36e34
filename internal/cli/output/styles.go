package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1  lipgloss.Style
	Header2  lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Symbol   lipgloss.Style
	Module   lipgloss.Style
	Renamed  lipgloss.Style
	Keyword  lipgloss.Style
	colorful bool
}

// NewStyles returns styles for a terminal, or plain styles when colorful
// is false so piped output carries no escape codes.
func NewStyles(colorful bool) *Styles {
	if !colorful {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1: plain, Header2: plain, Success: plain, Warning: plain,
			Error: plain, Muted: plain, Symbol: plain, Module: plain,
			Renamed: plain, Keyword: plain,
		}
	}
	return &Styles{
		Header1:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:  lipgloss.NewStyle().Bold(true),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Symbol:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Module:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		Renamed:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11")),
		Keyword:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		colorful: true,
	}
}

// icon picks a glyph on terminals and a word elsewhere.
func (s *Styles) icon(glyph, word string) string {
	if s.colorful {
		return glyph
	}
	return word
}
