package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"insurego-auth/internal/config"
	"insurego-auth/internal/model"
)

const twilioMessagesURL = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"

// SMSSender delivers verification codes through Twilio's Messages API.
type SMSSender struct {
	httpClient *http.Client
	accountSID string
	authToken  string
	from       string
}

func NewSMSSender(cfg *config.Config) (*SMSSender, error) {
	if cfg.Delivery.TwilioAccountSID == "" || cfg.Delivery.TwilioAuthToken == "" {
		return nil, errors.New("twilio credentials are required for live delivery")
	}
	if cfg.Delivery.TwilioFromNumber == "" {
		return nil, errors.New("twilio from-number is required for live delivery")
	}

	return &SMSSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		accountSID: cfg.Delivery.TwilioAccountSID,
		authToken:  cfg.Delivery.TwilioAuthToken,
		from:       cfg.Delivery.TwilioFromNumber,
	}, nil
}

func (s *SMSSender) Send(ctx context.Context, channel model.Channel, contact, code string) error {
	if channel != model.ChannelPhone {
		return fmt.Errorf("%w: sms sender got channel %s", ErrDeliveryFailed, channel)
	}

	form := url.Values{}
	form.Set("To", contact)
	form.Set("From", s.from)
	form.Set("Body", VerificationMessage(code))

	endpoint := fmt.Sprintf(twilioMessagesURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: twilio returned %d: %s", ErrDeliveryFailed, resp.StatusCode, string(body))
	}

	return nil
}
