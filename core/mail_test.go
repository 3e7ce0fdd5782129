package core

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplates(t *testing.T, files map[string]string) *Config {
	t.Helper()
	wd := t.TempDir()
	dir := filepath.Join(wd, "assets", "templates", "email")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return &Config{WorkDir: wd, FrontendBaseURL: "https://desk.test", TestMode: true}
}

func TestEmailMessage_Render(t *testing.T) {
	ParseEmailTemplates(writeTemplates(t, map[string]string{
		"_base.txt":     `{{template "content" .}} {{.FrontendBaseURL}}`,
		"_base.gohtml":  `<p>{{template "content" .}}</p>`,
		"hello.txt":     `{{define "content"}}hi {{.Data}}{{end}}`,
		"hello.gohtml":  `{{define "content"}}<b>{{.Data}}</b>{{end}}`,
		"textonly.txt":  `{{define "content"}}plain {{.Data}}{{end}}`,
		"broken.gohtml": `{{define "content"}}{{.Data`,
		"notes.md":      `ignored`,
	}), NopLogger)

	tests := []struct {
		name     string
		msg      EmailMessage
		wantText string
		wantHTML string
	}{
		{"both parts", EmailMessage{TemplateName: "hello", TemplateData: "Amani"}, "hi Amani https://desk.test", "<p><b>Amani</b></p>"},
		{"text only", EmailMessage{TemplateName: "textonly", TemplateData: "Amani"}, "plain Amani https://desk.test", ""},
		{"body wins over text template", EmailMessage{BodyStr: "as is", TemplateName: "hello", TemplateData: "Amani"}, "as is", "<p><b>Amani</b></p>"},
		{"unknown template", EmailMessage{TemplateName: "nope"}, "", ""},
		{"unparsable template skipped", EmailMessage{TemplateName: "broken"}, "", ""},
		{"no template", EmailMessage{BodyStr: "as is"}, "as is", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.NoError(t, msg.Render())
			assert.Equal(t, tt.wantText, msg.TextContent)
			assert.Equal(t, tt.wantHTML, msg.HTMLContent)
		})
	}
}

func TestEmailMessage_Attach(t *testing.T) {
	var msg EmailMessage
	assert.False(t, msg.HasAttachments())

	require.NoError(t, msg.Attach(strings.NewReader("BEGIN:VCALENDAR"), "session.ics", "text/calendar"))
	require.NoError(t, msg.Attach(strings.NewReader("just text"), "notes.txt"))

	require.Len(t, msg.Attachments, 2)
	raw, err := base64.StdEncoding.DecodeString(msg.Attachments[0].Content.String())
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", string(raw))
	assert.Equal(t, "text/calendar", msg.Attachments[0].ContentType)
	assert.Equal(t, "text/plain; charset=utf-8", msg.Attachments[1].ContentType)
	assert.True(t, msg.HasAttachments())
}
