package report

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Kind selects the color and prefix of a box
type Kind int

const (
	InfoBox Kind = iota
	SuccessBox
	WarningBox
	ErrorBox
)

const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Box is a builder for a framed message.
type Box struct {
	kind  Kind
	title string
	lines []string
	width int
}

// NewBox creates a box sized to the terminal.
func NewBox(kind Kind, title string) *Box {
	return &Box{kind: kind, title: title, width: terminalWidth() - 8}
}

// WithWidth overrides the maximum box width
func (b *Box) WithWidth(width int) *Box {
	b.width = width
	return b
}

func (b *Box) AddLine(text string) *Box {
	b.lines = append(b.lines, text)
	return b
}

func (b *Box) AddBullet(text string) *Box {
	b.lines = append(b.lines, "• "+text)
	return b
}

func (b *Box) style() (lipgloss.Style, string) {
	switch b.kind {
	case SuccessBox:
		return successStyle, "✓"
	case WarningBox:
		return warningStyle, "⚠"
	case ErrorBox:
		return errorStyle, "✗"
	default:
		return infoStyle, "ℹ"
	}
}

// Render returns the framed message.
func (b *Box) Render() string {
	style, prefix := b.style()
	contentWidth := b.width - 6
	if contentWidth < 10 {
		contentWidth = 10
	}

	var lines []string
	for _, line := range append([]string{b.title}, b.lines...) {
		if utf8.RuneCountInString(line) <= contentWidth {
			lines = append(lines, line)
		} else {
			lines = append(lines, wrapText(line, contentWidth)...)
		}
	}

	boxWidth := 6
	for _, line := range lines {
		if n := utf8.RuneCountInString(line) + 6; n > boxWidth {
			boxWidth = n
		}
	}

	var sb strings.Builder
	sb.WriteString(style.Render(topLeft+strings.Repeat(horizontal, boxWidth-2)+topRight) + "\n")

	first := lines[0]
	sb.WriteString(fmt.Sprintf("%s %s %s%s %s\n",
		style.Render(vertical),
		style.Bold(true).Render(prefix),
		first,
		strings.Repeat(" ", pad(boxWidth-utf8.RuneCountInString(first)-4-utf8.RuneCountInString(prefix))),
		style.Render(vertical)))

	for _, line := range lines[1:] {
		sb.WriteString(fmt.Sprintf("%s   %s%s %s\n",
			style.Render(vertical),
			line,
			strings.Repeat(" ", pad(boxWidth-utf8.RuneCountInString(line)-4)),
			style.Render(vertical)))
	}

	sb.WriteString(style.Render(bottomLeft + strings.Repeat(horizontal, boxWidth-2) + bottomRight))
	return sb.String()
}

func pad(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(word)+1 <= maxWidth {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
