package pkg

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"

	"Showtimes_Sync/internal/model"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string // 发件人邮箱
	Password string // 授权码/密码
	From     string // 显示的发件人，可与 Username 相同
}

func SendEmail(cfg SMTPConfig, to []string, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", cfg.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return d.DialAndSend(m)
}

func ResyncAlertHTML(entry model.ResyncEntry) string {
	since := "unknown"
	if !entry.FirstFailure.IsZero() {
		since = entry.FirstFailure.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf(`<p>Community <b>%d</b> has failed to sync to the remote store <b>%d</b> times.</p><p>Pending since %s.</p><p>Last error: <code>%s</code></p>`,
		entry.CommunityID, entry.Attempts, since, html.EscapeString(entry.LastError))
}

// MailAlerter 重试次数超过阈值时给运维发邮件
type MailAlerter struct {
	cfg  SMTPConfig
	to   []string
	send func(cfg SMTPConfig, to []string, subject, htmlBody string) error
}

func NewMailAlerter(cfg SMTPConfig, to []string) *MailAlerter {
	return &MailAlerter{cfg: cfg, to: to, send: SendEmail}
}

func (a *MailAlerter) Alert(_ context.Context, entry model.ResyncEntry) error {
	if len(a.to) == 0 {
		return nil
	}
	subject := fmt.Sprintf("[showtimes] community %d stuck in resync", entry.CommunityID)
	return a.send(a.cfg, a.to, subject, ResyncAlertHTML(entry))
}
