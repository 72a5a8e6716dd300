// Package notify delivers operator notifications about executed trades.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Notifier sends a single text message. Delivery is at-most-once.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Multi fans a message out to every notifier. Every notifier is attempted;
// the returned error joins the individual failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to the structured log. Used when no remote
// channel is configured.
type Log struct{}

func (Log) Notify(_ context.Context, message string) error {
	log.Info().Str("message", message).Msg("notify: notification")
	return nil
}

// BuyMessage renders the buy notification text.
func BuyMessage(name, address, details string) string {
	return fmt.Sprintf("Buy executed for %s (%s): %s", name, address, details)
}
