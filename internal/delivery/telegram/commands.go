package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NasaVasa/pricewatch/internal/domain"
)

const HelpText = `Commands:
/start - show this help
/help - show this help
/alerts [n] - list the n most recent price alerts (default 5, max 20)
`

const (
	defaultAlertLimit = 5
	maxAlertLimit     = 20
)

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseLimit(args string) (int, error) {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return defaultAlertLimit, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value <= 0 {
		return 0, ErrInvalidArguments
	}
	if value > maxAlertLimit {
		value = maxAlertLimit
	}
	return value, nil
}

func FormatAlert(alert domain.Alert) string {
	return fmt.Sprintf(
		"[%s] %s at %s: %s -> %s (%+.1f%%)\n%s",
		alert.Significance,
		nameOr(alert.ProductName, "product", alert.ProductID),
		nameOr(alert.CompetitorName, "competitor", alert.CompetitorID),
		alert.OldPrice.StringFixed(2),
		alert.NewPrice.StringFixed(2),
		alert.PercentageChange,
		alert.Reason,
	)
}

func FormatAlertList(alerts []domain.AlertView) string {
	if len(alerts) == 0 {
		return "No alerts yet."
	}
	var builder strings.Builder
	for i, view := range alerts {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		marker := ""
		if !view.Read {
			marker = " (new)"
		}
		builder.WriteString(fmt.Sprintf("#%d%s %s", view.ID, marker, view.CreatedAt.UTC().Format("2006-01-02 15:04")))
		builder.WriteString("\n")
		builder.WriteString(FormatAlert(view.Alert))
	}
	return builder.String()
}

func nameOr(name, kind string, id uint) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s #%d", kind, id)
}
