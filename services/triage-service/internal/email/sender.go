package email

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through a relay, authenticating only when a username is
// configured.
type SMTPSender struct {
	host     string
	port     int
	from     string
	username string
	password string
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	port, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || port <= 0 {
		port = 25
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@notifytriage.local"
	}
	return &SMTPSender{
		host:     strings.TrimSpace(cfg.Host),
		port:     port,
		from:     from,
		username: cfg.Username,
		password: cfg.Password,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	m, err := newMsg(s.from, msg, time.Now())
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}

// SplitRecipients parses a comma or semicolon separated recipient list.
func SplitRecipients(raw string) []string {
	var out []string
	for _, r := range strings.FieldsFunc(raw, func(c rune) bool { return c == ',' || c == ';' }) {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func newMsg(from string, msg Message, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, err
	}
	if err := m.To(msg.To...); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now)

	bodyType := mail.TypeTextPlain
	if msg.HTML {
		bodyType = mail.TypeTextHTML
	}
	m.SetBodyString(bodyType, msg.Body)

	for _, a := range msg.Attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.FileName, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, err
		}
	}
	return m, nil
}
