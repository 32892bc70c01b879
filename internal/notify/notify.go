package notify

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
)

// Message is a rendered notification ready to send.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier is the notification collaborator boundary: render a named
// template with locals, then send the result.
type Notifier interface {
	Render(name string, locals map[string]any) (Message, error)
	Send(ctx context.Context, m Message) error
}

// MemNotifier renders from an in-memory template set and records every
// sent message. It backs tests.
type MemNotifier struct {
	mu        sync.Mutex
	Templates map[string]string
	Sent      []Message
	Fail      bool
}

func NewMemNotifier() *MemNotifier {
	return &MemNotifier{Templates: map[string]string{
		"invite": "You have been invited as {{.roleName}}. Token: {{.token}}",
	}}
}

func (n *MemNotifier) Render(name string, locals map[string]any) (Message, error) {
	src, ok := n.Templates[name]
	if !ok {
		return Message{}, fmt.Errorf("notification template %s not found", name)
	}
	tpl, err := template.New(name).Parse(src)
	if err != nil {
		return Message{}, err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, locals); err != nil {
		return Message{}, err
	}
	to, _ := locals["to"].(string)
	subject, _ := locals["subject"].(string)
	return Message{To: to, Subject: subject, Body: buf.String()}, nil
}

func (n *MemNotifier) Send(ctx context.Context, m Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return fmt.Errorf("notifier unavailable")
	}
	n.Sent = append(n.Sent, m)
	return nil
}
