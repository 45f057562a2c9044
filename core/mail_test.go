package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recLogger struct {
	errors []string
}

func (l *recLogger) Debug(string, ...interface{}) {}
func (l *recLogger) Info(string, ...interface{})  {}
func (l *recLogger) Warn(string, ...interface{})  {}
func (l *recLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}
func (l *recLogger) Fatal(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }

func TestEmailMessage_Render(t *testing.T) {
	logger := new(recLogger)
	ParseEmailTemplates(logger, true)
	require.Empty(t, logger.errors)

	conf := NewTestConfig()

	t.Run("template", func(t *testing.T) {
		msg := &EmailMessage{
			Subject:      "Registration confirmed",
			TemplateName: "registration_confirmed",
			TemplateData: map[string]interface{}{
				"Name":       "Awe",
				"EventName":  "Hack Night",
				"StartsAt":   "Mon, 02 Jan 2026 18:00 UTC",
				"Venue":      "AB3",
				"TicketCode": "RC-ABCD-EFGH",
			},
		}
		require.NoError(t, msg.Render(conf))

		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "RC-ABCD-EFGH")
		assert.Contains(t, msg.TextContent, conf.FrontendBaseURL+"/attend")
		assert.Contains(t, msg.HTMLContent, "<strong>Hack Night</strong>")
		assert.True(t, strings.HasPrefix(strings.TrimSpace(msg.HTMLContent), "<!DOCTYPE html>"))
	})

	t.Run("body string", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "plain"}
		require.NoError(t, msg.Render(conf))
		assert.Equal(t, "plain", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "lol"}
		require.NoError(t, msg.Render(conf))
		assert.False(t, msg.HasContent())
	})

	t.Run("attachment", func(t *testing.T) {
		msg := new(EmailMessage)
		require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "export.csv", "text/csv"))
		require.True(t, msg.HasAttachments())
		assert.Equal(t, "YSxiCjEsMgo=", msg.Attachments[0].Content.String())
		assert.Equal(t, "text/csv", msg.Attachments[0].ContentType)
	})
}
