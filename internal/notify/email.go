package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/go-resty/resty/v2"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const TemplateMaintenanceUpcoming = "maintenance_upcoming"

var subjects = map[string]string{
	TemplateMaintenanceUpcoming: "Upcoming maintenance",
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// EmailSender renders HTML templates and posts them to the mail gateway.
type EmailSender struct {
	client *resty.Client
	from   string
	tmpl   *template.Template
}

func NewEmailSender(cfg config.NotificationConfig) (*EmailSender, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	client := resty.New().
		SetBaseURL(cfg.EmailBaseURL).
		SetTimeout(cfg.SendTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.EmailAPIKey != "" {
		client.SetAuthToken(cfg.EmailAPIKey)
	}

	return &EmailSender{client: client, from: cfg.EmailSender, tmpl: tmpl}, nil
}

func (e *EmailSender) Send(ctx context.Context, to, name string, data interface{}) error {
	if to == "" {
		return fmt.Errorf("%w: empty email recipient", domain.ErrInvalidInput)
	}

	var body bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&body, name+".html", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(emailRequest{
			From:    e.from,
			To:      to,
			Subject: subjects[name],
			HTML:    body.String(),
		}).
		Post("/send")
	if err != nil {
		return fmt.Errorf("send email to %s: %w: %v", to, domain.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send email to %s: %w: gateway returned %s", to, domain.ErrUpstreamUnavailable, resp.Status())
	}
	return nil
}
