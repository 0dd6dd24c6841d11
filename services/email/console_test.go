package emailsvc

import (
	"io/ioutil"
	"log"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core"
	logsvc "github.com/trezcool/feedback/services/logger"
)

type mailData struct {
	Name        string
	Title       string
	Description string
	DueDate     string
	FormID      string
}

func newMock() *ConsoleServiceMock {
	conf := &core.Config{AppName: "Feedback", FrontendBaseURL: "https://feedback.test", TestMode: true}
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	return NewConsoleServiceMock(conf, logger)
}

func TestConsoleServiceMock_rendersTemplates(t *testing.T) {
	svc := newMock()
	svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: "Ama", Address: "ama@test.com"}},
		Subject:      "New feedback form",
		TemplateName: "form_published",
		TemplateData: mailData{Name: "Ama", Title: "Labs", Description: "Lab sessions", DueDate: "Fri, 01 May 2026", FormID: "f1"},
	})

	sent := svc.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Contains(t, msg.TextContent, "Hello Ama,")
	assert.Contains(t, msg.TextContent, `"Labs"`)
	assert.Contains(t, msg.TextContent, "Lab sessions")
	assert.Contains(t, msg.TextContent, "https://feedback.test/forms/f1")
	assert.Contains(t, msg.TextContent, "The Feedback team")
	assert.Contains(t, msg.HTMLContent, "<strong>Labs</strong>")
	assert.Contains(t, msg.HTMLContent, `href="https://feedback.test/forms/f1"`)
}

func TestConsoleServiceMock_skipsEmptyMessages(t *testing.T) {
	svc := newMock()
	svc.SendMessages(
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hi"},
		&core.EmailMessage{To: []mail.Address{{Address: "ama@test.com"}}, Subject: "no content"},
		&core.EmailMessage{To: []mail.Address{{Address: "ama@test.com"}}, Subject: "plain", BodyStr: "hi"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "plain", sent[0].Subject)
	assert.Equal(t, "hi", sent[0].TextContent)

	svc.Reset()
	assert.Empty(t, svc.Sent())
}

func TestConsoleService_format(t *testing.T) {
	svc := newMock()
	out, err := svc.format(core.EmailMessage{
		To:          []mail.Address{{Address: "ama@test.com"}},
		Subject:     "Hi",
		TextContent: "plain body",
		HTMLContent: "<p>html body</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: [Feedback] Hi\r\n")
	assert.Contains(t, out, "To: <ama@test.com>\r\n")
	assert.Contains(t, out, "plain body")
	assert.Contains(t, out, "<p>html body</p>")
}
