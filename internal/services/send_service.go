package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/graph"
	"gorm.io/gorm"
)

var (
	// ErrQueueEntryNotFound indicates the outbound queue entry was not found
	ErrQueueEntryNotFound = errors.New("outbound queue entry not found")
	// ErrQueueEntryNotResettable indicates the entry is not in the error state
	ErrQueueEntryNotResettable = errors.New("only errored queue entries can be reset")
	// ErrEmptyPayload indicates the queue entry carries no MIME payload
	ErrEmptyPayload = errors.New("outbound entry has no message payload")
)

// SendService routes outbound queue entries through the mail API. Only
// entries flagged at insert time are touched; everything else stays on the
// host's default delivery path.
type SendService struct {
	db       *gorm.DB
	clients  *GraphClients
	accounts *AccountService
}

// NewSendService creates a new SendService instance
func NewSendService(db *gorm.DB, clients *GraphClients, accounts *AccountService) *SendService {
	return &SendService{
		db:       db,
		clients:  clients,
		accounts: accounts,
	}
}

// DecideSendPath decides at insert time whether a queue entry is routed
// through the API. The flag is only set when exactly one enabled account is
// marked for sending; otherwise the entry is left on the default path.
func (s *SendService) DecideSendPath(entry *models.OutboundMessage) bool {
	account, err := s.accounts.GetSendingAccount()
	if err != nil {
		return false
	}
	entry.GraphSend = true
	entry.AccountID = account.ID
	return true
}

// Enqueue inserts an outbound message into the queue, applying the send
// path decision the same way the host's insert hook does.
func (s *SendService) Enqueue(sender string, recipients []string, raw []byte) (*models.OutboundMessage, error) {
	entry := &models.OutboundMessage{
		ID:         uuid.NewString(),
		Status:     models.OutboundStatusPending,
		Sender:     sender,
		Recipients: marshalAddrs(recipients),
		RawMessage: raw,
	}
	s.DecideSendPath(entry)

	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// SendResult summarizes one queue processing pass.
type SendResult struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ProcessPending sends flagged pending queue entries oldest first, up to
// limit. Each entry is claimed with a conditional update so concurrent
// processors never send the same entry twice. Outcomes are terminal: an
// errored entry is not retried until an operator resets it.
func (s *SendService) ProcessPending(ctx context.Context, limit int) (*SendResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []models.OutboundMessage
	err := s.db.Where("graph_send = ? AND status = ?", true, models.OutboundStatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	result := &SendResult{}
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		entry := &entries[i]

		claim := s.db.Model(&models.OutboundMessage{}).
			Where("id = ? AND status = ?", entry.ID, models.OutboundStatusPending).
			Update("status", models.OutboundStatusSending)
		if claim.Error != nil {
			return result, claim.Error
		}
		if claim.RowsAffected == 0 {
			continue // claimed elsewhere in the meantime
		}
		result.Claimed++

		if err := s.sendEntry(ctx, entry); err != nil {
			log.Printf("Send failed for queue entry %s: %v", entry.ID, err)
			s.markError(entry.ID, err.Error())
			result.Failed++
			continue
		}
		s.markSent(entry.ID)
		result.Sent++
	}

	return result, nil
}

func (s *SendService) markSent(id string) {
	err := s.db.Model(&models.OutboundMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.OutboundStatusSent,
		"sent_at":       time.Now(),
		"error_message": "",
	}).Error
	if err != nil {
		log.Printf("Failed to mark queue entry %s sent: %v", id, err)
	}
}

func (s *SendService) markError(id, message string) {
	err := s.db.Model(&models.OutboundMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.OutboundStatusError,
		"error_message": message,
	}).Error
	if err != nil {
		log.Printf("Failed to mark queue entry %s errored: %v", id, err)
	}
}

// sendEntry delivers one claimed entry through the sending account.
func (s *SendService) sendEntry(ctx context.Context, entry *models.OutboundMessage) error {
	account, err := s.accounts.GetSendingAccount()
	if err != nil {
		return err
	}

	content, err := parseOutboundPayload(entry.RawMessage)
	if err != nil {
		return err
	}

	to := unmarshalAddrs(entry.Recipients)
	if len(to) == 0 {
		to = content.To
	}
	if len(to) == 0 {
		return fmt.Errorf("queue entry %s has no recipients", entry.ID)
	}
	cc := unmarshalAddrs(entry.CcRecipients)
	if len(cc) == 0 {
		cc = content.Cc
	}

	body := content.Body
	bodyType := content.BodyType
	if account.Footer != "" {
		body = appendFooter(body, bodyType, account.Footer)
	}

	req := &graph.SendRequest{
		Message: graph.SendMessage{
			Subject:      content.Subject,
			Body:         graph.MessageBody{ContentType: bodyType, Content: body},
			From:         graph.NewSender(senderAddress(account, entry.Sender)),
			ToRecipients: graph.NewRecipients(to),
			CcRecipients: graph.NewRecipients(cc),
			Attachments:  content.Attachments,
		},
		SaveToSentItems: true,
	}

	client := s.clients.For(account.CredentialID)
	return client.SendMail(ctx, account.EmailAddress, req)
}

// ResetEntry puts an errored entry back to pending for another attempt.
func (s *SendService) ResetEntry(id string) error {
	result := s.db.Model(&models.OutboundMessage{}).
		Where("id = ? AND status = ?", id, models.OutboundStatusError).
		Updates(map[string]interface{}{
			"status":        models.OutboundStatusPending,
			"error_message": "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var entry models.OutboundMessage
		if err := s.db.First(&entry, "id = ?", id).Error; err != nil {
			return ErrQueueEntryNotFound
		}
		return ErrQueueEntryNotResettable
	}
	return nil
}

// ListEntries returns queue entries, optionally filtered by status,
// newest first.
func (s *SendService) ListEntries(status models.OutboundStatus, limit int) ([]models.OutboundMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.Order("created_at desc").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var entries []models.OutboundMessage
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// outboundContent is the decoded form of a queued MIME payload.
type outboundContent struct {
	Subject     string
	Body        string
	BodyType    string
	To          []string
	Cc          []string
	Attachments []graph.SendAttachment
}

// parseOutboundPayload decodes a raw MIME message into the pieces the send
// API needs. HTML is preferred when the message carries both body variants.
func parseOutboundPayload(raw []byte) (*outboundContent, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}

	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse outbound message: %w", err)
	}
	defer reader.Close()

	content := &outboundContent{BodyType: "text"}
	content.Subject, _ = reader.Header.Subject()
	if addrs, err := reader.Header.AddressList("To"); err == nil {
		content.To = plainAddresses(addrs)
	}
	if addrs, err := reader.Header.AddressList("Cc"); err == nil {
		content.Cc = plainAddresses(addrs)
	}

	var textBody string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			contentType, _, _ := header.ContentType()
			switch contentType {
			case "text/html":
				content.Body = string(data)
				content.BodyType = "html"
			case "text/plain", "":
				textBody = string(data)
			}
		case *gomail.AttachmentHeader:
			filename, _ := header.Filename()
			if filename == "" {
				continue
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			contentType, _, _ := header.ContentType()
			content.Attachments = append(content.Attachments, graph.SendAttachment{
				ODataType:   "#microsoft.graph.fileAttachment",
				Name:        filename,
				ContentType: contentType,
				Content:     base64.StdEncoding.EncodeToString(data),
			})
		}
	}

	if content.Body == "" {
		content.Body = textBody
		content.BodyType = "text"
	}

	return content, nil
}

// senderAddress picks the from address of an outbound entry. The queued
// sender wins unless the account insists on its own address or the queued
// value is unusable.
func senderAddress(account *models.MailAccount, queued string) string {
	if account.AlwaysUseAccountAddress {
		return account.EmailAddress
	}
	if parsed, err := mail.ParseAddress(queued); err == nil {
		return parsed.Address
	}
	if strings.Contains(queued, "@") {
		return strings.TrimSpace(queued)
	}
	return account.EmailAddress
}

func plainAddresses(addrs []*mail.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != nil && a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}

// appendFooter attaches the account footer to the outbound body, matching
// the body's content type.
func appendFooter(body, bodyType, footer string) string {
	if strings.EqualFold(bodyType, "html") {
		return body + "<br/><br/><div>" + strings.ReplaceAll(footer, "\n", "<br/>") + "</div>"
	}
	return body + "\n\n" + footer
}

func unmarshalAddrs(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal([]byte(encoded), &addrs); err != nil {
		return nil
	}
	return addrs
}
