package graph

// Message represents a mail message from the Graph API.
type Message struct {
	ID               string        `json:"id"`
	Subject          string        `json:"subject"`
	BodyPreview      string        `json:"bodyPreview"`
	Body             *MessageBody  `json:"body"`
	From             *EmailAddress `json:"from"`
	ToRecipients     []Recipient   `json:"toRecipients"`
	CcRecipients     []Recipient   `json:"ccRecipients"`
	ReceivedDateTime string        `json:"receivedDateTime"`
	SentDateTime     string        `json:"sentDateTime"`
	IsRead           bool          `json:"isRead"`
	IsDraft          bool          `json:"isDraft"`
	HasAttachments   bool          `json:"hasAttachments"`
	ParentFolderID   string        `json:"parentFolderId"`

	// Removed is set for delta tombstones of deleted messages.
	Removed *RemovedInfo `json:"@removed,omitempty"`
}

// RemovedInfo marks a deleted item in a delta page.
type RemovedInfo struct {
	Reason string `json:"reason"`
}

// IsRemoved reports whether the message is a delta tombstone.
func (m *Message) IsRemoved() bool {
	return m.Removed != nil
}

// MessageBody represents the body of a mail message.
type MessageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// EmailAddress represents an address with optional display name.
type EmailAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// Address returns the plain address.
func (e *EmailAddress) Address() string {
	if e == nil {
		return ""
	}
	return e.EmailAddress.Address
}

// Name returns the display name.
func (e *EmailAddress) Name() string {
	if e == nil {
		return ""
	}
	return e.EmailAddress.Name
}

// Recipient represents a message recipient.
type Recipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// Addresses extracts the plain addresses from a recipient list.
func Addresses(recipients []Recipient) []string {
	addrs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.EmailAddress.Address != "" {
			addrs = append(addrs, r.EmailAddress.Address)
		}
	}
	return addrs
}

// DeltaPage is one page of a delta query response. NextLink continues the
// current sync round; DeltaLink is only present on the terminal page and is
// the cursor for the next incremental sync.
type DeltaPage struct {
	Messages  []Message `json:"value"`
	NextLink  string    `json:"@odata.nextLink"`
	DeltaLink string    `json:"@odata.deltaLink"`
}

// Attachment represents a file attachment from the Graph API.
// ContentBytes is base64 encoded per the wire format.
type Attachment struct {
	ODataType    string `json:"@odata.type"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

// IsFileAttachment reports whether the attachment is a plain file attachment
// (as opposed to an item or reference attachment).
func (a *Attachment) IsFileAttachment() bool {
	return a.ODataType == "#microsoft.graph.fileAttachment"
}

// MailFolder represents a mail folder from the Graph API.
type MailFolder struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	TotalItemCount  int    `json:"totalItemCount"`
	UnreadItemCount int    `json:"unreadItemCount"`
}

// SendRequest is the payload of a sendMail operation.
type SendRequest struct {
	Message         SendMessage `json:"message"`
	SaveToSentItems bool        `json:"saveToSentItems"`
}

// SendMessage is the message part of a send request. From may be omitted,
// in which case the mailbox owner is the sender.
type SendMessage struct {
	Subject       string           `json:"subject"`
	Body          MessageBody      `json:"body"`
	From          *EmailAddress    `json:"from,omitempty"`
	ToRecipients  []Recipient      `json:"toRecipients"`
	CcRecipients  []Recipient      `json:"ccRecipients,omitempty"`
	BccRecipients []Recipient      `json:"bccRecipients,omitempty"`
	Attachments   []SendAttachment `json:"attachments,omitempty"`
}

// SendAttachment is a file attachment of an outbound message.
// Content must be base64 encoded.
type SendAttachment struct {
	ODataType   string `json:"@odata.type"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"contentBytes"`
}

// NewSender builds a from address from a plain address.
func NewSender(address string) *EmailAddress {
	var e EmailAddress
	e.EmailAddress.Address = address
	return &e
}

// NewRecipient builds a recipient from a plain address.
func NewRecipient(address string) Recipient {
	var r Recipient
	r.EmailAddress.Address = address
	return r
}

// NewRecipients builds a recipient list from plain addresses.
func NewRecipients(addresses []string) []Recipient {
	recipients := make([]Recipient, 0, len(addresses))
	for _, addr := range addresses {
		if addr != "" {
			recipients = append(recipients, NewRecipient(addr))
		}
	}
	return recipients
}
