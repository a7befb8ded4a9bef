package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/ledger"
)

// Notifier announces settlement outcomes on an operator channel.
type Notifier struct {
	messenger Messenger
	channelID string
}

// New creates a Notifier posting to channelID through m.
func New(m Messenger, channelID string) *Notifier {
	return &Notifier{
		messenger: m,
		channelID: channelID,
	}
}

// Report posts the outcome of one settlement. Delivery failures are logged only.
func (n *Notifier) Report(ctx context.Context, s domain.Settlement, err error) {
	text := FormatSettlement(s, err)
	if sendErr := n.messenger.SendMessage(ctx, n.channelID, text); sendErr != nil {
		log.Error().Err(sendErr).
			Str("platform", n.messenger.Platform()).
			Int64("session_id", s.SessionID).
			Msg("notify.Notifier.Report: send failed")
	}
}

// FormatSettlement renders a settlement outcome as a one-line message.
func FormatSettlement(s domain.Settlement, err error) string {
	if err != nil {
		return fmt.Sprintf(":x: settlement failed: %s: %v", ledger.Describe(s), err)
	}
	return ":white_check_mark: settled " + ledger.Describe(s)
}
