package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"RetailBackOffice/pkg/mail"
)

// Message готовое к отправке письмо
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type kindTemplates struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Renderer отрисовывает письма по типу задания
type Renderer struct {
	templates map[mail.Kind]kindTemplates
	product   string
}

// NewRenderer создает рендерер со встроенными шаблонами. product подставляется в подпись письма.
func NewRenderer(product string) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[mail.Kind]kindTemplates, len(sources)),
		product:   product,
	}
	for kind, src := range sources {
		subject, err := template.New(string(kind) + ":subject").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject template: %w", kind, err)
		}
		text, err := template.New(string(kind) + ":text").Funcs(textFuncs).Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", kind, err)
		}
		html, err := htmltemplate.New(string(kind) + ":html").Funcs(htmlFuncs).Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", kind, err)
		}
		r.templates[kind] = kindTemplates{subject: subject, text: text, html: html}
	}
	return r, nil
}

// Render отрисовывает письмо для задания
func (r *Renderer) Render(job mail.Job) (Message, error) {
	t, ok := r.templates[job.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for mail kind %q", job.Kind)
	}

	data := map[string]interface{}{
		"Product": r.product,
		"Data":    job.Data,
	}

	var msg Message
	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	msg.Subject = buf.String()

	buf.Reset()
	if err := t.text.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	msg.Text = buf.String()

	buf.Reset()
	if err := t.html.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	msg.HTML = buf.String()
	return msg, nil
}

// expires приводит RFC3339 к читаемому виду, нераспознанное значение выводится как есть
func expires(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

var (
	textFuncs = template.FuncMap{"expires": expires}
	htmlFuncs = htmltemplate.FuncMap{"expires": expires}
)

type source struct {
	subject string
	text    string
	html    string
}

var sources = map[mail.Kind]source{
	mail.KindUserCode: {
		subject: `{{.Product}}: your user code`,
		text: `Hello,

Your user code is: {{index .Data "user_code"}}

Use it together with your password to sign in.
If you did not request this reminder, you can ignore this message.

--
{{.Product}}
`,
		html: `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Product}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hello,</p>
  <p>Your user code is: <strong>{{index .Data "user_code"}}</strong></p>
  <p>Use it together with your password to sign in.
  If you did not request this reminder, you can ignore this message.</p>
  <p style="color: #6c757d; font-size: 12px;">{{.Product}}</p>
</body>
</html>
`,
	},
	mail.KindPasswordReset: {
		subject: `{{.Product}}: password reset`,
		text: `Hello,

A password reset was requested for your account.
Open the link below to choose a new password:

{{index .Data "link"}}

The link can be used once and expires at {{expires (index .Data "expires_at")}}.
If you did not request a reset, you can ignore this message.

--
{{.Product}}
`,
		html: `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Product}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hello,</p>
  <p>A password reset was requested for your account.</p>
  <p><a href="{{index .Data "link"}}">Choose a new password</a></p>
  <p>The link can be used once and expires at {{expires (index .Data "expires_at")}}.
  If you did not request a reset, you can ignore this message.</p>
  <p style="color: #6c757d; font-size: 12px;">{{.Product}}</p>
</body>
</html>
`,
	},
}
