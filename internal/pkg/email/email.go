package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmailService sends templated notification mail. Callers own retries.
type EmailService interface {
	SendNotification(to, name, title, body string, critical bool) error
}

type emailServiceImpl struct {
	cfg       config.SMTPConfig
	templates *template.Template
	now       func() time.Time
}

// NewEmailService creates a new email service instance
func NewEmailService(cfg config.SMTPConfig) (EmailService, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &emailServiceImpl{
		cfg:       cfg,
		templates: tmpl,
		now:       time.Now,
	}, nil
}

type notificationEmailData struct {
	Name     string
	Title    string
	Body     string
	Critical bool
	SentAt   string
}

func (s *emailServiceImpl) SendNotification(to, name, title, body string, critical bool) error {
	data := notificationEmailData{
		Name:     name,
		Title:    title,
		Body:     body,
		Critical: critical,
		SentAt:   s.now().Format("02 Jan 2006 15:04 MST"),
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "notification.html", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	subject := title
	if critical {
		subject = "[CRITICAL] " + title
	}
	return s.sendHTML(to, subject, buf.String())
}

func (s *emailServiceImpl) sendHTML(to, subject, htmlBody string) error {
	// Skip sending if SMTP is not configured
	if s.cfg.Host == "" {
		slog.Warn("SMTP not configured, skipping email send", "to", to, "subject", subject)
		return nil
	}

	from := s.cfg.From

	headers := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, from)
	headers += fmt.Sprintf("To: %s\r\n", to)
	headers += fmt.Sprintf("Subject: %s\r\n", subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	headers += "\r\n"

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(headers+htmlBody)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	slog.Info("Email sent successfully", "to", to, "subject", subject)
	return nil
}
