// Package notify sends rendered messages to a user identity over an external
// messaging channel. Delivery is fire-and-forget: a nil error means the
// channel accepted the message, not that the user saw it.
package notify

import "context"

type Notifier interface {
	Send(ctx context.Context, owner, message string) error
}
