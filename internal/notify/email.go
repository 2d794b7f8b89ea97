package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

func (d *Dispatcher) sendEmail(title, message string, level classify.Severity) error {
	e := d.cfg.Email
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(level)), title)
	return d.sendFn(addr, e.From, e.To, subject, message, e.Username, e.Password)
}

// sendSMTP delivers a plain-text message over SMTP. Auth is used only when
// a username is configured, so an unauthenticated relay on localhost works.
func sendSMTP(addr, from, to, subject, body, username, password string) error {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, from, []string{to}, []byte(msg))
}
