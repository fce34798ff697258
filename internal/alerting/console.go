package alerting

import (
	"context"
	"fmt"
	"io"
)

// ConsoleNotifier writes alerts to a writer instead of a chat transport.
// Used by the simulate command.
type ConsoleNotifier struct {
	Out io.Writer
}

// Send prints the rendered alert.
func (c *ConsoleNotifier) Send(_ context.Context, chatID, text string) error {
	_, err := fmt.Fprintf(c.Out, "--- alert for %s ---\n%s\n", chatID, text)
	return err
}

var _ Notifier = (*ConsoleNotifier)(nil)
