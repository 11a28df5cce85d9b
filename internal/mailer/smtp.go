package mailer

import (
	"bytes"
	"errors"
	"net/http"
	"text/template"
	"time"

	gomail "gopkg.in/mail.v2"
)

type SMTPClient struct {
	dialer    *gomail.Dialer
	fromEmail string
}

func NewSMTPClient(host string, port int, username, password, fromEmail string) (*SMTPClient, error) {
	if host == "" {
		return nil, errors.New("smtp host is required")
	}

	return &SMTPClient{
		dialer:    gomail.NewDialer(host, port, username, password),
		fromEmail: fromEmail,
	}, nil
}

func (c *SMTPClient) Send(templateFile, username, email string, data any) (int, error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return -1, err
	}

	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, "subject", data); err != nil {
		return -1, err
	}

	body := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(body, "body", data); err != nil {
		return -1, err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", c.fromEmail)
	message.SetHeader("To", email)
	message.SetHeader("Subject", subject.String())
	message.SetBody("text/html", body.String())

	var retryErr error
	for i := 0; i < maxRetries; i++ {
		if retryErr = c.dialer.DialAndSend(message); retryErr == nil {
			return http.StatusOK, nil
		}
		time.Sleep(time.Second * time.Duration(i+1))
	}

	return -1, retryErr
}
