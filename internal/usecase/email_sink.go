package usecase

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
)

// Mailer sends one message to every recipient.
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

var emailTemplate = template.Must(template.New("alert").Parse(`Price alert: {{.Significance}} significance

Product:     {{.Product}}
Competitor:  {{.Competitor}}
Old price:   {{.OldPrice}}
New price:   {{.NewPrice}}
Change:      {{.Change}}%
Detected at: {{.DetectedAt}}

{{.Reason}}
`))

type emailView struct {
	Significance string
	Product      string
	Competitor   string
	OldPrice     string
	NewPrice     string
	Change       string
	DetectedAt   string
	Reason       string
}

type EmailSink struct {
	subscribers domain.SubscriberDirectory
	mailer      Mailer
	logger      *zap.Logger
}

func NewEmailSink(subscribers domain.SubscriberDirectory, mailer Mailer, logger *zap.Logger) *EmailSink {
	return &EmailSink{subscribers: subscribers, mailer: mailer, logger: logger}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, alert domain.Alert) error {
	recipients, err := s.subscribers.ListSubscribersAtOrAbove(ctx, alert.Significance)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(recipients) == 0 {
		s.logger.Debug("no email subscribers for alert", zap.Uint("alert_id", alert.ID), zap.String("significance", string(alert.Significance)))
		return nil
	}

	body, err := RenderAlertEmail(alert)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, recipients, AlertEmailSubject(alert), body); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	s.logger.Info("alert email sent", zap.Uint("alert_id", alert.ID), zap.Int("recipients", len(recipients)))
	return nil
}

func AlertEmailSubject(alert domain.Alert) string {
	return fmt.Sprintf("[%s] %s price change at %s", alert.Significance, displayName(alert.ProductName, "product", alert.ProductID), displayName(alert.CompetitorName, "competitor", alert.CompetitorID))
}

// RenderAlertEmail renders the plain-text alert body. Output depends only on alert.
func RenderAlertEmail(alert domain.Alert) (string, error) {
	view := emailView{
		Significance: string(alert.Significance),
		Product:      displayName(alert.ProductName, "product", alert.ProductID),
		Competitor:   displayName(alert.CompetitorName, "competitor", alert.CompetitorID),
		OldPrice:     alert.OldPrice.StringFixed(2),
		NewPrice:     alert.NewPrice.StringFixed(2),
		Change:       strconv.FormatFloat(alert.PercentageChange, 'f', 2, 64),
		DetectedAt:   alert.CreatedAt.UTC().Format(time.RFC1123),
		Reason:       alert.Reason,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}

func displayName(name, kind string, id uint) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s #%d", kind, id)
}
