package service

import (
	"fmt"

	"github.com/paytrack-next/internal/payment/phonepe"
)

func parseWebhookBody(body []byte) (*phonepe.WebhookEvent, error) {
	event, err := phonepe.ParseWebhookEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookPayloadInvalid, err)
	}
	return event, nil
}
