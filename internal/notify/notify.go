// Package notify surfaces warnings and maintenance reminders to people.
// Delivery is best effort: failures are logged and counted, never returned
// to the pipeline that produced the message.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindWarning     Kind = "warning"
	KindMaintenance Kind = "maintenance"
)

type Message struct {
	Kind   Kind        `json:"kind"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	Data   interface{} `json:"data,omitempty"`
	SentAt time.Time   `json:"sentAt"`
}

// Pusher sends a message to a named recipient over a push channel.
type Pusher interface {
	Name() string
	Notify(ctx context.Context, recipient string, msg Message) error
}

// Mailer renders a named template and emails it.
type Mailer interface {
	Send(ctx context.Context, to, template string, data interface{}) error
}
