package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"

	"insurego-auth/internal/config"
	"insurego-auth/internal/model"
	"insurego-auth/internal/util"
)

// EmailSender delivers verification codes through Postmark's transactional
// API.
type EmailSender struct {
	client *postmark.Client
	from   string
}

func NewEmailSender(cfg *config.Config) (*EmailSender, error) {
	if cfg.Delivery.PostmarkToken == "" {
		return nil, errors.New("postmark server token is required for live delivery")
	}
	if cfg.Delivery.FromEmail == "" {
		return nil, errors.New("delivery from-address is required for live delivery")
	}

	return &EmailSender{
		client: postmark.NewClient(cfg.Delivery.PostmarkToken, ""),
		from:   cfg.Delivery.FromEmail,
	}, nil
}

func (s *EmailSender) Send(ctx context.Context, channel model.Channel, contact, code string) error {
	if channel != model.ChannelEmail {
		return fmt.Errorf("%w: email sender got channel %s", ErrDeliveryFailed, channel)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       contact,
		Subject:  "Your InsureGo verification code",
		TextBody: VerificationMessage(code),
		Tag:      "otp-verification",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrDeliveryFailed, resp.ErrorCode, resp.Message)
	}

	util.Debug("Verification email sent", zap.String("message_id", resp.MessageID))
	return nil
}
