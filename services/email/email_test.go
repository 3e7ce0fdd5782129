package emailsvc

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coachdesk/core"
)

func testMessage(t *testing.T) *core.EmailMessage {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Amani", Address: "amani@test.cd"}},
		Subject: "Session reminder",
		BodyStr: "See you tomorrow.",
	}
	require.NoError(t, msg.Attach(strings.NewReader("BEGIN:VCALENDAR"), "session.ics", "text/calendar"))
	return msg
}

func TestConsoleServiceMock(t *testing.T) {
	conf := &core.Config{AppName: "Coachdesk"}
	svc := NewConsoleServiceMock(conf)

	svc.SendMessages(testMessage(t), &core.EmailMessage{Subject: "nobody to send to", BodyStr: "x"})

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "See you tomorrow.", sent[0].TextContent)
}

func TestSendgridService_prepare(t *testing.T) {
	conf := &core.Config{AppName: "Coachdesk", SendgridAPIKey: "key"}
	svc := NewSendgridService(conf, core.NopLogger).(*sendgridService)
	msg := testMessage(t)
	require.NoError(t, msg.Render())

	m := svc.prepare(msg)

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Coachdesk] Session reminder", m.Personalizations[0].Subject)
	assert.Equal(t, "amani@test.cd", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 1, "no html part without html content")
	require.Len(t, m.Attachments, 1)
	raw, err := base64.StdEncoding.DecodeString(m.Attachments[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", string(raw))
}
