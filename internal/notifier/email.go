package notifier

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

const defaultEmailSubject = "Twilio Log Alert"

// SMTPConfig holds the process-wide SMTP transport settings.
type SMTPConfig struct {
	Host     string        // SMTP server host
	Port     int           // 465 for implicit TLS, 587 or 25 otherwise
	Username string        // optional
	Password string        // optional
	From     string        // From address
	UseTLS   bool          // require STARTTLS on non-465 ports
	Timeout  time.Duration // dial and session timeout
}

// EmailActionConfig is the per-action email configuration.
type EmailActionConfig struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject,omitempty"`
	Body       *string  `json:"body,omitempty"`
}

// EmailHandler sends alert emails.
type EmailHandler struct {
	smtp   SMTPConfig
	logger *zap.Logger
}

// NewEmailHandler creates an email handler.
func NewEmailHandler(cfg SMTPConfig, logger *zap.Logger) *EmailHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailHandler{smtp: cfg, logger: logger}
}

// Kind returns models.ActionEmail.
func (e *EmailHandler) Kind() models.ActionKind {
	return models.ActionEmail
}

// ValidateConfig requires a non-empty recipients list.
func (e *EmailHandler) ValidateConfig(config json.RawMessage) error {
	_, err := e.parseConfig(config)
	return err
}

func (e *EmailHandler) parseConfig(config json.RawMessage) (*EmailActionConfig, error) {
	var raw map[string]json.RawMessage
	if err := decodeConfig(config, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw["recipients"]; !ok {
		return nil, invalidConfig("email config missing 'recipients'")
	}
	var cfg EmailActionConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, invalidConfig("email 'recipients' must be a list of addresses")
	}
	if len(cfg.Recipients) == 0 {
		return nil, invalidConfig("email 'recipients' list is empty")
	}
	return &cfg, nil
}

// Execute renders and sends the email.
func (e *EmailHandler) Execute(ctx context.Context, config json.RawMessage, log *models.Log) Result {
	cfg, err := e.parseConfig(config)
	if err != nil {
		return failure(err)
	}

	fields := templateFields(log, emailTimeLayout)

	subject := cfg.Subject
	if subject == "" {
		subject = defaultEmailSubject
	}
	if strings.Contains(subject, "{{") {
		if subject, err = renderTemplate("subject", subject, fields); err != nil {
			return failure(err)
		}
	}

	var body string
	if cfg.Body != nil {
		body, err = renderTemplate("body", *cfg.Body, fields)
	} else {
		body, err = renderDefaultEmailBody(fields)
	}
	if err != nil {
		return failure(err)
	}

	e.logger.Info("sending email", zap.Strings("recipients", cfg.Recipients))
	msg := e.buildMessage(cfg.Recipients, subject, body)
	if err := e.sendMail(ctx, cfg.Recipients, msg); err != nil {
		e.logger.Error("error sending email", zap.Error(err))
		return failure(err)
	}

	return Result{Success: true, Recipients: cfg.Recipients, Subject: subject}
}

// buildMessage builds a plain-text RFC 5322 message.
func (e *EmailHandler) buildMessage(recipients []string, subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.smtp.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	msg.WriteString("\r\n")

	return []byte(msg.String())
}

// sendMail sends the message via SMTP.
func (e *EmailHandler) sendMail(ctx context.Context, recipients []string, msg []byte) error {
	if e.smtp.Host == "" {
		return fmt.Errorf("SMTP host is not configured")
	}
	addr := net.JoinHostPort(e.smtp.Host, strconv.Itoa(e.smtp.Port))
	tlsConfig := &tls.Config{ServerName: e.smtp.Host}

	ctx, cancel := context.WithTimeout(ctx, e.smtp.Timeout)
	defer cancel()

	var (
		client *smtp.Client
		err    error
	)
	if e.smtp.Port == 465 {
		client, err = e.connectImplicitTLS(ctx, addr, tlsConfig)
	} else {
		client, err = e.connectPlain(ctx, addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if e.smtp.Username != "" && e.smtp.Password != "" {
		auth := smtp.PlainAuth("", e.smtp.Username, e.smtp.Password, e.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(e.smtp.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

func (e *EmailHandler) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: e.smtp.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return conn, nil
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (e *EmailHandler) connectImplicitTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	conn, err := e.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return smtp.NewClient(tlsConn, e.smtp.Host)
}

// connectPlain connects in clear text and upgrades with STARTTLS when UseTLS is set.
func (e *EmailHandler) connectPlain(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	conn, err := e.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, e.smtp.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if e.smtp.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, fmt.Errorf("server does not support STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 && end > start {
			return addr[start+1 : end]
		}
	}
	return strings.TrimSpace(addr)
}
