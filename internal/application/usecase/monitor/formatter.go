package monitor

import (
	"fmt"
	"strings"
	"time"

	"tickerhub/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	// StaleAfter dims symbols without an update for this long, 0 disables.
	StaleAfter time.Duration
}

func NewFormatter(staleAfter time.Duration) *Formatter {
	return &Formatter{StaleAfter: staleAfter}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render draws one line: symbol, last price and change, colored by the
// direction of the last tick.
func (f *Formatter) Render(board *domain.Board, symbols []string, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[TICKERHUB] ", ansiDim))

	for i, sym := range symbols {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		sb.WriteString(sym)
		sb.WriteString(" ")

		price := board.GetPrice(sym)
		if price == 0 {
			sb.WriteString(colorize("--", ansiYellow))
			continue
		}

		col := ansiYellow
		switch board.GetDirection(sym) {
		case domain.DirectionUp:
			col = ansiGreen
		case domain.DirectionDown:
			col = ansiRed
		}
		if f.StaleAfter > 0 && board.IsStale(sym, f.StaleAfter) {
			col = ansiDim
		}
		sb.WriteString(colorize(fmt.Sprintf("%s %+.2f%%", FormatPrice(price), board.GetChange(sym)), col))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

// FormatPrice keeps two decimals for regular prices and more for sub-unit ones.
func FormatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("%.2f", p)
	case p >= 0.01:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.8f", p)
	}
}
