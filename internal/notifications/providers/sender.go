// Package providers contains the delivery transports of the notification
// worker.
package providers

import "context"

// Email is a rendered notification ready for delivery.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered notification over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, email Email) error
}
