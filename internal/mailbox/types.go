// Package mailbox lists recent inbox messages through the Microsoft Graph API.
package mailbox

import "time"

// Message is the read-only projection of a mailbox entry used for code
// extraction.
type Message struct {
	ID             string
	Subject        string
	BodyPreview    string
	FromAddress    string
	FromName       string
	ReceivedAt     time.Time
	IsRead         bool
	HasAttachments bool
}

// selectFields is the $select list requested from Graph.
const selectFields = "id,subject,bodyPreview,from,receivedDateTime,isRead,hasAttachments"

// listResponse is the Graph collection envelope for messages.
type listResponse struct {
	Value []graphMessage `json:"value"`
}

// graphMessage mirrors the Graph message resource fields we select.
type graphMessage struct {
	ID               string     `json:"id"`
	Subject          string     `json:"subject"`
	BodyPreview      string     `json:"bodyPreview"`
	From             *recipient `json:"from"`
	ReceivedDateTime time.Time  `json:"receivedDateTime"`
	IsRead           bool       `json:"isRead"`
	HasAttachments   bool       `json:"hasAttachments"`
}

// recipient represents a sender or recipient in a Graph response.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph response.
type emailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toMessage converts a Graph message into a Message.
func (g graphMessage) toMessage() Message {
	msg := Message{
		ID:             g.ID,
		Subject:        g.Subject,
		BodyPreview:    g.BodyPreview,
		ReceivedAt:     g.ReceivedDateTime,
		IsRead:         g.IsRead,
		HasAttachments: g.HasAttachments,
	}
	if g.From != nil {
		msg.FromAddress = g.From.EmailAddress.Address
		msg.FromName = g.From.EmailAddress.Name
	}
	return msg
}
