package services

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/clubstack/memberhub/internal/config"
	"github.com/clubstack/memberhub/internal/models"
	"github.com/clubstack/memberhub/pkg/logger"
)

// EmailService sends transactional mail over SMTP using the static server
// configuration. Delivery problems are reported to the caller, who decides
// whether they matter; the allocation engine only logs them.
type EmailService struct {
	cfg *config.SMTPConfig
}

func NewEmailService(cfg *config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendStatusEmail mails the applicant about a join-request decision.
// Disabled or unconfigured SMTP is a no-op, and a missing recipient address
// is skipped rather than treated as a failure.
func (s *EmailService) SendStatusEmail(n *StatusNotification) error {
	if !s.cfg.Enabled || s.cfg.Host == "" {
		return nil
	}
	if n.MemberEmail == "" {
		logger.Debug().Str("member_id", n.MemberID).Msg("no email address, skipping notification")
		return nil
	}

	var subject string
	switch n.Status {
	case models.RequestStatusAccepted:
		subject = fmt.Sprintf("[MemberHub] You're in: %s", n.ProjectTitle)
	case models.RequestStatusRejected:
		subject = fmt.Sprintf("[MemberHub] Update on your application to %s", n.ProjectTitle)
	default:
		subject = fmt.Sprintf("[MemberHub] Application update: %s", n.ProjectTitle)
	}

	body := s.buildStatusBody(n)
	return s.sendEmail([]string{n.MemberEmail}, subject, body)
}

func (s *EmailService) buildStatusBody(n *StatusNotification) string {
	var sb strings.Builder

	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString(fmt.Sprintf("<h2>Hi %s,</h2>", n.MemberName))

	switch n.Status {
	case models.RequestStatusAccepted:
		sb.WriteString(fmt.Sprintf("<p>Your request to join <b>%s</b> (%s) has been <b>accepted</b>. Welcome aboard!</p>",
			n.ProjectTitle, n.Semester))
	case models.RequestStatusRejected:
		sb.WriteString(fmt.Sprintf("<p>Your request to join <b>%s</b> (%s) was <b>not accepted</b> this time.</p>",
			n.ProjectTitle, n.Semester))
		sb.WriteString("<p>Keep an eye on the project board; other projects are still recruiting.</p>")
	default:
		sb.WriteString(fmt.Sprintf("<p>Your request to join <b>%s</b> (%s) is now <b>%s</b>.</p>",
			n.ProjectTitle, n.Semester, n.Status))
	}

	sb.WriteString("<hr><p style=\"color: #888; font-size: 12px;\">MemberHub club portal</p>")
	sb.WriteString("</body></html>")

	return sb.String()
}

func (s *EmailService) sendEmail(to []string, subject, body string) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	headers := make(map[string]string)
	headers["From"] = from
	headers["To"] = strings.Join(to, ",")
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	var message strings.Builder
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var err error
	if s.cfg.UseTLS {
		err = s.sendEmailTLS(addr, auth, from, to, message.String())
	} else {
		err = smtp.SendMail(addr, auth, from, to, []byte(message.String()))
	}

	if err != nil {
		logger.Warn().Err(err).Strs("to", to).Msg("failed to send email")
		return err
	}

	logger.Info().Strs("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func (s *EmailService) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, message string) error {
	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}
