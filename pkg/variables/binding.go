package variables

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

const (
	customerPrefix = "customer."
	// customFieldPrefix addresses a CRM custom field by its slug.
	customFieldPrefix = "customer_"
	chatPrefix        = "chat."
)

// Binding resolves identifiers for one session. Lookup order is session
// variables, then customer.*, then customer_<slug>, then chat.*.
type Binding struct {
	Variables map[string]string
	Customer  *models.Customer
	Chat      *models.Chat
	Logger    *slog.Logger
}

// Resolve implements Resolver.
func (b *Binding) Resolve(name string) (string, bool) {
	if value, ok := b.Variables[name]; ok {
		return value, true
	}

	if field, ok := strings.CutPrefix(name, customerPrefix); ok {
		if value, found := b.customerField(field); found {
			return value, true
		}
	}

	if slug, ok := strings.CutPrefix(name, customFieldPrefix); ok && b.Customer != nil {
		if value, found := b.Customer.CustomFields[slug]; found {
			return value, true
		}
	}

	if field, ok := strings.CutPrefix(name, chatPrefix); ok {
		if value, found := b.chatField(field); found {
			return value, true
		}
	}

	if b.Logger != nil {
		b.Logger.Debug("unresolved variable", "name", name)
	}

	return "", false
}

// Interpolate is Interpolate bound to this resolver.
func (b *Binding) Interpolate(text string) string {
	return Interpolate(text, b)
}

func (b *Binding) customerField(field string) (string, bool) {
	c := b.Customer
	if c == nil {
		return "", false
	}

	switch field {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "facebook":
		return c.Facebook, true
	case "instagram":
		return c.Instagram, true
	case "funnel_id":
		return c.FunnelID, true
	case "stage_id":
		return c.StageID, true
	case "team_id":
		return c.TeamID, true
	case "user_id":
		return c.UserID, true
	}

	value, ok := c.CustomFields[field]

	return value, ok
}

func (b *Binding) chatField(field string) (string, bool) {
	c := b.Chat
	if c == nil {
		return "", false
	}

	switch field {
	case "id":
		return c.ID, true
	case "status":
		return c.Status, true
	case "ticket_number":
		return c.TicketNumber, true
	case "channel":
		return c.Channel, true
	case "start_time":
		if c.StartTime.IsZero() {
			return "", true
		}

		return c.StartTime.Format(time.RFC3339), true
	case "last_message_at":
		if c.LastMessageAt == nil {
			return "", true
		}

		return c.LastMessageAt.Format(time.RFC3339), true
	default:
		return "", false
	}
}
