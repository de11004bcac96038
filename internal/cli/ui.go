package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/message"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED"))

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#F59E0B")).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	neutralStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	doneStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#10B981"))
)

func renderAnalysis(listing domain.Listing, analysis domain.Analysis) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(listing.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Asking:"), message.FormatAmount(listing.AskingPrice))
	fmt.Fprintf(&b, "%s %s - %s\n", labelStyle.Render("Fair value:"),
		message.FormatAmount(analysis.FairValueMin), message.FormatAmount(analysis.FairValueMax))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Recommended offer:"), message.FormatAmount(analysis.RecommendedOffer))
	fmt.Fprintf(&b, "%s %s  %s %.0f%%\n", labelStyle.Render("Flexibility:"), analysis.Flexibility,
		labelStyle.Render("Confidence:"), analysis.ConfidenceScore*100)

	if len(analysis.Factors) > 0 {
		b.WriteString("\n")
		for _, f := range analysis.Factors {
			fmt.Fprintf(&b, "%s %-22s %s\n", impactMark(f.Impact), f.Name, labelStyle.Render(f.Description))
		}
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func impactMark(impact domain.Impact) string {
	switch impact {
	case domain.ImpactPositive:
		return positiveStyle.Render("+")
	case domain.ImpactNegative:
		return negativeStyle.Render("-")
	default:
		return neutralStyle.Render("~")
	}
}

func renderMessage(msg domain.SuggestedMessage) string {
	header := labelStyle.Render(fmt.Sprintf("%s · %s confidence", msg.Type, msg.Confidence))
	return messageStyle.Render(header + "\n" + msg.Text)
}

func renderOutcome(session domain.Session) string {
	switch session.State {
	case domain.StateAccepted:
		return doneStyle.Render(fmt.Sprintf("Deal at %s", message.FormatAmount(dealPrice(session))))
	case domain.StateRejected:
		return negativeStyle.Render("Seller rejected the offer")
	case domain.StateWalkedAway:
		return neutralStyle.Render("Walked away")
	}
	return labelStyle.Render(string(session.State))
}

// dealPrice is the last amount on the table when the deal closed.
func dealPrice(session domain.Session) float64 {
	if n := len(session.CounterHistory); n > 0 {
		return session.CounterHistory[n-1].Amount
	}
	return session.CurrentOffer
}
