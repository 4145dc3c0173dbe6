package services

import (
	"bytes"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"
)

// Mailer 发送通知邮件。实现必须是非阻塞或可在 goroutine 中安全调用的。
type Mailer interface {
	SendReplyNotification(msg ReplyMail) error
}

// ReplyMail 回复通知邮件的内容
type ReplyMail struct {
	To              string
	ActiveUser      string
	BlogTitle       string
	ReplyContent    string
	OriginalContent string
	Link            string
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.Port != 0 && c.Username != "" && c.Password != "" && c.From != ""
}

type MailService struct {
	dialer *mail.Dialer
	from   string
	log    *zap.Logger
}

var replyTemplate = template.Must(template.New("reply").Parse(`<p><strong>{{.ActiveUser}}</strong> replied to your comment on <em>{{.BlogTitle}}</em>:</p>
<blockquote>{{.OriginalContent}}</blockquote>
<p>{{.ReplyContent}}</p>
<p><a href="{{.Link}}">View the conversation</a></p>`))

// NewMailService SMTP 配置不完整时返回 nil，调用方改用 NoopMailer
func NewMailService(cfg MailConfig, log *zap.Logger) *MailService {
	if !cfg.Enabled() {
		log.Warn("MailService disabled: missing SMTP environment variables")
		return nil
	}
	return &MailService{
		dialer: mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

func (s *MailService) SendReplyNotification(msg ReplyMail) error {
	var buf bytes.Buffer
	if err := replyTemplate.Execute(&buf, msg); err != nil {
		return fmt.Errorf("render reply email: %w", err)
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", s.from, "Blogsphere")
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", fmt.Sprintf("%s replied to your comment on %q", msg.ActiveUser, msg.BlogTitle))
	m.SetBody("text/html", buf.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	s.log.Info("Email sent", zap.String("to", msg.To))
	return nil
}

type NoopMailer struct{}

func (NoopMailer) SendReplyNotification(ReplyMail) error { return nil }
