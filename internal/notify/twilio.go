package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioNotifier sends WhatsApp messages through the Twilio REST API. Owners
// are Twilio WhatsApp addresses, e.g. "whatsapp:+15550001111".
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioNotifier(accountSID, authToken, from string) *TwilioNotifier {
	return &TwilioNotifier{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

func (n *TwilioNotifier) Send(_ context.Context, owner, message string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(owner)
	params.SetFrom(n.from)
	params.SetBody(message)
	if _, err := n.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send to %s: %w", owner, err)
	}
	return nil
}
