package mailer

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trustteams/trustteams-api/internal/models"
	"github.com/trustteams/trustteams-api/pkg/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer sends transactional email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	SendVerification(to, name, link string) error
	SendVerificationResend(to, name, link string) error
	SendWelcome(to, name string) error
	SendOpportunityBroadcast(to, name string, opp *models.Opportunity, link string) error
	SendApplicationConfirmation(to, name, opportunityTitle string) error
	SendApplicationDecision(to, name, opportunityTitle, reviewerName string, notes string, approved bool) error
}

// SMTPMailer delivers mail over SMTP with STARTTLS. Every send dials a fresh
// connection with dial and I/O deadlines so a slow relay cannot wedge a
// worker.
type SMTPMailer struct {
	cfg       config.SMTPConfig
	log       *zap.Logger
	templates *template.Template
}

// NewSMTPMailer parses the embedded templates and returns a ready mailer.
func NewSMTPMailer(cfg config.SMTPConfig, log *zap.Logger) (*SMTPMailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &SMTPMailer{cfg: cfg, log: log, templates: tmpl}, nil
}

// SendVerification sends the initial email-verification message.
func (m *SMTPMailer) SendVerification(to, name, link string) error {
	return m.send(to, "Verify your email address", "verification.html", map[string]interface{}{
		"Name": name,
		"Link": link,
	})
}

// SendVerificationResend sends a fresh verification link for an unverified
// account.
func (m *SMTPMailer) SendVerificationResend(to, name, link string) error {
	return m.send(to, "Your new verification link", "verification_resend.html", map[string]interface{}{
		"Name": name,
		"Link": link,
	})
}

// SendWelcome greets a newly verified account.
func (m *SMTPMailer) SendWelcome(to, name string) error {
	return m.send(to, "Welcome to TrustTeams", "welcome.html", map[string]interface{}{
		"Name": name,
	})
}

// SendOpportunityBroadcast notifies a student about a newly posted
// opportunity.
func (m *SMTPMailer) SendOpportunityBroadcast(to, name string, opp *models.Opportunity, link string) error {
	return m.send(to, fmt.Sprintf("New opportunity: %s", opp.Title), "opportunity.html", map[string]interface{}{
		"Name":        name,
		"Opportunity": opp,
		"Link":        link,
	})
}

// SendApplicationConfirmation acknowledges a submitted application.
func (m *SMTPMailer) SendApplicationConfirmation(to, name, opportunityTitle string) error {
	return m.send(to, "Application received", "application_confirmation.html", map[string]interface{}{
		"Name":  name,
		"Title": opportunityTitle,
	})
}

// SendApplicationDecision notifies the applicant of an approve or reject
// decision.
func (m *SMTPMailer) SendApplicationDecision(to, name, opportunityTitle, reviewerName string, notes string, approved bool) error {
	data := map[string]interface{}{
		"Name":     name,
		"Title":    opportunityTitle,
		"Reviewer": reviewerName,
		"Notes":    notes,
	}
	if approved {
		return m.send(to, fmt.Sprintf("Application approved: %s", opportunityTitle), "application_approved.html", data)
	}
	return m.send(to, fmt.Sprintf("Application update: %s", opportunityTitle), "application_rejected.html", data)
}

func (m *SMTPMailer) send(to, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("render %s: %w", templateName, err)
	}

	fromHeader := fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.User)
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		body.String(),
	}, "\r\n")

	if err := m.deliver(to, []byte(msg)); err != nil {
		m.log.Warn("mail delivery failed", zap.String("to", to), zap.String("template", templateName), zap.Error(err))
		return err
	}
	m.log.Debug("mail sent", zap.String("to", to), zap.String("template", templateName))
	return nil
}

func (m *SMTPMailer) deliver(to string, msg []byte) error {
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	host := m.cfg.Host
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", m.cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.User != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.User); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
