package emailsvc

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
)

// consoleService writes rendered messages to out instead of sending them.
type consoleService struct {
	from       mail.Address
	subjPrefix string
	logger     core.Logger

	mu          sync.Mutex
	out         io.Writer
	sent        []core.EmailMessage
	synchronous bool
	wg          sync.WaitGroup
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return newConsoleService(conf, logger, os.Stdout, false)
}

// ConsoleServiceMock renders synchronously, prints nothing and keeps what it "sent".
type ConsoleServiceMock struct {
	*consoleService
}

func NewConsoleServiceMock(conf *core.Config) *ConsoleServiceMock {
	return &ConsoleServiceMock{consoleService: newConsoleService(conf, core.NopLogger, io.Discard, true)}
}

func (m *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.sent...)
}

func newConsoleService(conf *core.Config, logger core.Logger, out io.Writer, synchronous bool) *consoleService {
	return &consoleService{
		from:        conf.DefaultFromEmail(),
		subjPrefix:  "[" + conf.AppName + "] ",
		logger:      logger,
		out:         out,
		synchronous: synchronous,
	}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.synchronous {
			svc.sendMessage(msg)
			continue
		}
		svc.wg.Add(1)
		go func(msg *core.EmailMessage) {
			defer svc.wg.Done()
			svc.sendMessage(msg)
		}(msg)
	}
}

// Wait blocks until every message handed over so far was written.
func (svc *consoleService) Wait() { svc.wg.Wait() }

func (svc *consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		svc.logger.Error("rendering email", errors.Wrap(err, msg.TemplateName))
		return
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.write(*msg)
	svc.sent = append(svc.sent, *msg)
}

func (svc *consoleService) write(msg core.EmailMessage) {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", svc.from.String())
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s%s\n", svc.subjPrefix, msg.Subject)
	fmt.Fprintf(&b, "To: %s\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", joinAddresses(msg.Bcc))
	}
	fmt.Fprintf(&b, "\n%s\n", msg.TextContent)
	for _, at := range msg.Attachments {
		fmt.Fprintf(&b, "[attachment %s (%s), %d bytes base64]\n", at.Filename, at.ContentType, at.Content.Len())
	}
	b.WriteString("----\n")
	_, _ = io.WriteString(svc.out, b.String())
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
