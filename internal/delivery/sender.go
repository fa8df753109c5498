package delivery

import (
	"context"
	"errors"
	"fmt"

	"insurego-auth/internal/config"
	"insurego-auth/internal/model"
)

var ErrDeliveryFailed = errors.New("delivery failed")

// Sender delivers a one-time passcode over an out-of-band channel. Callers
// treat delivery as fire-and-forget: a returned error is logged upstream and
// never surfaced to the requester.
type Sender interface {
	Send(ctx context.Context, channel model.Channel, contact, code string) error
}

// VerificationMessage is the body sent over SMS and the plain-text body of
// verification emails.
func VerificationMessage(code string) string {
	return fmt.Sprintf("InsureGo Verification Code: %s", code)
}

// NewSender builds the sender for the configured delivery mode. Dev mode
// logs codes instead of sending them; live mode routes PHONE to Twilio and
// EMAIL to Postmark.
func NewSender(cfg *config.Config) (Sender, error) {
	switch cfg.Delivery.Mode {
	case "dev":
		return NewDevSender(), nil
	case "live":
		email, err := NewEmailSender(cfg)
		if err != nil {
			return nil, err
		}
		sms, err := NewSMSSender(cfg)
		if err != nil {
			return nil, err
		}
		return &routingSender{email: email, sms: sms}, nil
	default:
		return nil, fmt.Errorf("unknown delivery mode: %s", cfg.Delivery.Mode)
	}
}

type routingSender struct {
	email Sender
	sms   Sender
}

func (s *routingSender) Send(ctx context.Context, channel model.Channel, contact, code string) error {
	switch channel {
	case model.ChannelEmail:
		return s.email.Send(ctx, channel, contact, code)
	case model.ChannelPhone:
		return s.sms.Send(ctx, channel, contact, code)
	default:
		return fmt.Errorf("%w: unsupported channel %s", ErrDeliveryFailed, channel)
	}
}
