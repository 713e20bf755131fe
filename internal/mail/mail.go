package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gomail "github.com/wneessen/go-mail"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DefaultTimeout bounds one relay handoff when the caller's context has no
// earlier deadline.
const DefaultTimeout = 15 * time.Second

type SMTPMailer struct {
	addr     string
	from     string
	username string
	password string
	timeout  time.Duration
}

func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, username: username, password: password, timeout: DefaultTimeout}
}

// Send delivers msg through the relay. The whole exchange, greeting
// included, ends at the earlier of ctx's deadline and the mailer timeout.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	composed, err := m.compose(msg)
	if err != nil {
		return err
	}
	client, err := m.client(ctx)
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, composed); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) (*gomail.Msg, error) {
	composed := gomail.NewMsg()
	if err := composed.From(m.from); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := composed.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	composed.Subject(msg.Subject)
	composed.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return composed, nil
}

func (m *SMTPMailer) client(ctx context.Context) (*gomail.Client, error) {
	host, rawPort, err := net.SplitHostPort(m.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp addr: %w", err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return nil, fmt.Errorf("smtp port: %w", err)
	}
	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(dialWithDeadline),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// dialWithDeadline carries the dial context's deadline onto the connection,
// so a relay that accepts and then goes silent cannot stall the greeting.
func dialWithDeadline(ctx context.Context, network, address string) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "mail not delivered, no smtp configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
