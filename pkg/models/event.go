package models

import "time"

// InboundEvent is a message received from a customer on some channel.
type InboundEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id" validate:"required"`
	ChatID         string    `json:"chat_id"         validate:"required"`
	CustomerID     string    `json:"customer_id"     validate:"required"`
	Channel        string    `json:"channel"         validate:"required"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	// FirstContact is set by the host when no prior chat exists for the customer.
	FirstContact bool `json:"first_contact"`
}

// Customer is the CRM record bound to a session. CustomFields is keyed by slug.
type Customer struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Facebook     string            `json:"facebook,omitempty"`
	Instagram    string            `json:"instagram,omitempty"`
	FunnelID     string            `json:"funnel_id,omitempty"`
	StageID      string            `json:"stage_id,omitempty"`
	TeamID       string            `json:"team_id,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// Chat is the conversation record bound to a session.
type Chat struct {
	ID                   string     `json:"id"`
	OrganizationID       string     `json:"organization_id"`
	CustomerID           string     `json:"customer_id"`
	Channel              string     `json:"channel"`
	Status               string     `json:"status"`
	TicketNumber         string     `json:"ticket_number"`
	StartTime            time.Time  `json:"start_time"`
	LastMessageAt        *time.Time `json:"last_message_at,omitempty"`
	LastCustomerActivity *time.Time `json:"last_customer_activity,omitempty"`
	LastAgentActivity    *time.Time `json:"last_agent_activity,omitempty"`
}

// LastActivity returns the last activity time of source, if known.
func (c *Chat) LastActivity(source InactivitySource) (time.Time, bool) {
	var at *time.Time

	switch source {
	case InactivityCustomer:
		at = c.LastCustomerActivity
	case InactivityAgent:
		at = c.LastAgentActivity
	}

	if at == nil {
		return time.Time{}, false
	}

	return *at, true
}

// MessageType is the kind of an outbound message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageLink     MessageType = "link"
	MessageList     MessageType = "list"
	MessageAudio    MessageType = "audio"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
)

// OutboundMessage is delivered to the customer through the host.
type OutboundMessage struct {
	SessionID string      `json:"session_id"`
	ChatID    string      `json:"chat_id"`
	NodeID    string      `json:"node_id"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	MediaURL  string      `json:"media_url,omitempty"`
	FileID    string      `json:"file_id,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Audio     []byte      `json:"audio,omitempty"`
	List      *ListMenu   `json:"list,omitempty"`
}
