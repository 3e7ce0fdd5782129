package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"io"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

// emailTemplates holds the parsed templates by name (file name without extension).
type emailTemplates struct {
	sync.RWMutex
	text    map[string]*texttmpl.Template
	html    map[string]*htmltmpl.Template
	baseURL string
}

var mailTemplates emailTemplates

type (
	// Attachment content is base64 encoded.
	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // plain text, used as-is instead of a template
		Attachments []Attachment

		TemplateName string
		TemplateData interface{}

		// set by Render
		TextContent string
		HTMLContent string
	}

	// ContextData is what email templates execute against.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent. A message without a matching template keeps them empty.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	mailTemplates.RLock()
	txt := mailTemplates.text[m.TemplateName]
	html := mailTemplates.html[m.TemplateName]
	data := ContextData{FrontendBaseURL: mailTemplates.baseURL, Data: m.TemplateData}
	mailTemplates.RUnlock()

	var buf bytes.Buffer
	if txt != nil && m.BodyStr == "" {
		if err := txt.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buf.String()
	}
	if html != nil {
		buf.Reset()
		if err := html.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buf.String()
	}
	return nil
}

// Attach reads r fully and adds it as an attachment. The content type is sniffed unless given.
func (m *EmailMessage) Attach(r io.Reader, filename string, contentType ...string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	ct := http.DetectContentType(raw)
	if len(contentType) > 0 {
		ct = contentType[0]
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)

	m.Attachments = append(m.Attachments, Attachment{
		Content:     bytes.NewBuffer(encoded),
		ContentType: ct,
		Filename:    filename,
	})
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return m.TextContent != "" || m.HTMLContent != "" }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates loads <workDir>/assets/templates/email/*.{txt,gohtml}, each wrapped in
// the matching _base layout. Files starting with "_" are not addressable by name.
// A template that fails to parse is logged and skipped.
func ParseEmailTemplates(conf *Config, logger Logger) {
	dir := filepath.Join(conf.WorkDir, "assets", "templates", "email")
	paths, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		logger.Error("core.ParseEmailTemplates", err)
	}
	strict := conf.Debug || conf.TestMode

	text := make(map[string]*texttmpl.Template)
	html := make(map[string]*htmltmpl.Template)
	for _, path := range paths {
		fname := filepath.Base(path)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := filepath.Ext(fname)
		name := strings.TrimSuffix(fname, ext)

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFiles(filepath.Join(dir, "_base.txt"), path)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s)", fname), err)
				continue
			}
			if strict {
				tmpl.Option("missingkey=error")
			}
			text[name] = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFiles(filepath.Join(dir, "_base.gohtml"), path)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s)", fname), err)
				continue
			}
			if strict {
				tmpl.Option("missingkey=error")
			}
			html[name] = tmpl
		}
	}

	mailTemplates.Lock()
	mailTemplates.text = text
	mailTemplates.html = html
	mailTemplates.baseURL = conf.FrontendBaseURL
	mailTemplates.Unlock()
}
