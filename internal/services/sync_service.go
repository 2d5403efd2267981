package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/graph"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncService runs incremental delta syncs of remote mailboxes into the
// local store. A run is resumable: each persisted page advances the folder
// cursor in the same transaction, so a crash never loses or duplicates mail.
type SyncService struct {
	db       *gorm.DB
	clients  *GraphClients
	accounts *AccountService
	logs     *LogService

	// accountLocks guards against concurrent syncs of the same account,
	// whether triggered by the scheduler or the admin API.
	accountLocks sync.Map
}

// NewSyncService creates a new SyncService instance
func NewSyncService(db *gorm.DB, clients *GraphClients, accounts *AccountService, logs *LogService) *SyncService {
	return &SyncService{
		db:       db,
		clients:  clients,
		accounts: accounts,
		logs:     logs,
	}
}

// TryLockAccount attempts to mark an account as syncing. Returns false when
// a sync for the account is already running.
func (s *SyncService) TryLockAccount(accountID uint) bool {
	_, loaded := s.accountLocks.LoadOrStore(accountID, time.Now())
	return !loaded
}

// UnlockAccount releases the sync lock for an account
func (s *SyncService) UnlockAccount(accountID uint) {
	s.accountLocks.Delete(accountID)
}

// IsAccountSyncing reports whether a sync is currently running for the account
func (s *SyncService) IsAccountSyncing(accountID uint) bool {
	_, ok := s.accountLocks.Load(accountID)
	return ok
}

// SyncOutcome is the aggregated result of syncing one account.
type SyncOutcome struct {
	AccountID     uint       `json:"account_id"`
	Status        string     `json:"status"`
	Counts        SyncCounts `json:"counts"`
	FoldersSynced int        `json:"folders_synced"`
	FoldersFailed int        `json:"folders_failed"`
	Error         string     `json:"error,omitempty"`
}

// SyncAccount syncs one account. When folderName is empty, all sync-enabled
// folders of the account are synced; a failing folder does not stop the
// remaining ones. The caller must hold the account lock.
func (s *SyncService) SyncAccount(ctx context.Context, accountID uint, folderName string) (*SyncOutcome, error) {
	account, err := s.accounts.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		return nil, ErrAccountDisabled
	}

	folders := s.foldersToSync(account, folderName)
	if len(folders) == 0 {
		return &SyncOutcome{AccountID: accountID, Status: models.SyncStatusSuccess}, nil
	}

	client := s.clients.For(account.CredentialID)
	outcome := &SyncOutcome{AccountID: accountID}
	var lastErr string
	budgetHit := false

	for _, folder := range folders {
		if ctx.Err() != nil {
			budgetHit = true
			break
		}
		counts, err := s.syncFolder(ctx, client, account, folder)
		outcome.Counts.Add(counts)
		if err != nil {
			outcome.FoldersFailed++
			lastErr = fmt.Sprintf("%s: %v", folder, err)
			log.Printf("Sync failed for %s folder %s: %v", account.EmailAddress, folder, err)
			continue
		}
		outcome.FoldersSynced++
	}

	switch {
	case outcome.FoldersFailed == 0:
		outcome.Status = models.SyncStatusSuccess
	case outcome.FoldersSynced == 0:
		outcome.Status = models.SyncStatusFailed
		outcome.Error = lastErr
	default:
		outcome.Status = models.SyncStatusPartial
		outcome.Error = lastErr
	}

	// Folders left unattempted when the tick budget ran out must not
	// report a clean run.
	if budgetHit && outcome.Status == models.SyncStatusSuccess {
		outcome.Status = models.SyncStatusPartial
		outcome.Error = "stopped before all folders were attempted: " + ctx.Err().Error()
	}

	if err := s.accounts.recordSyncResult(accountID, outcome.Status, outcome.Error, time.Now()); err != nil {
		log.Printf("Failed to record sync result for account %d: %v", accountID, err)
	}

	return outcome, nil
}

// foldersToSync resolves the folder list for a run. An explicit folder name
// wins; otherwise the sync-enabled filters apply, defaulting to Inbox when
// the account has no filters at all.
func (s *SyncService) foldersToSync(account *models.MailAccount, folderName string) []string {
	if folderName != "" {
		return []string{folderName}
	}
	var folders []string
	for _, f := range account.FolderFilters {
		if f.SyncEnabled {
			folders = append(folders, f.FolderName)
		}
	}
	if folders == nil && len(account.FolderFilters) == 0 {
		folders = []string{"Inbox"}
	}
	return folders
}

// syncFolder runs the delta loop for one folder. Pages are persisted one at
// a time: messages and the advanced cursor commit in a single transaction.
// An expired cursor resets to a full fetch exactly once per run.
func (s *SyncService) syncFolder(ctx context.Context, client *graph.Client, account *models.MailAccount, folderName string) (SyncCounts, error) {
	var counts SyncCounts

	cursor, err := s.loadCursor(account.ID, folderName)
	if err != nil {
		return counts, err
	}

	syncType := models.SyncTypeDelta
	if cursor.DeltaLink == "" {
		syncType = models.SyncTypeFull
	}

	runLog, logErr := s.logs.StartRun(account.ID, folderName, syncType)
	if logErr != nil {
		log.Printf("Failed to start sync log for account %d: %v", account.ID, logErr)
	}

	link := cursor.DeltaLink
	resetOnce := false
	aborted := false

	for {
		page, err := client.ListMessagesDelta(ctx, account.EmailAddress, folderName, link)
		if err != nil {
			if errors.Is(err, graph.ErrDeltaExpired) && !resetOnce {
				// Cursor no longer known to the remote: restart as a full
				// fetch. Dedup makes the replay of already-stored mail a no-op.
				log.Printf("Delta cursor expired for %s/%s, falling back to full sync", account.EmailAddress, folderName)
				resetOnce = true
				link = ""
				syncType = models.SyncTypeFull
				if runLog != nil {
					runLog.SyncType = syncType
				}
				continue
			}
			s.completeRun(runLog, models.SyncLogStatusFailed, counts, err.Error())
			return counts, err
		}

		pageCounts, records := s.buildRecords(ctx, client, account, folderName, syncType, page.Messages)

		nextCursor := page.NextLink
		if page.DeltaLink != "" {
			nextCursor = page.DeltaLink
		}

		created, err := s.persistPage(cursor, records, nextCursor)
		if err != nil {
			s.completeRun(runLog, models.SyncLogStatusFailed, counts, err.Error())
			return counts, err
		}
		pageCounts.Created = created
		pageCounts.Skipped += len(records) - created
		counts.Add(pageCounts)

		if page.DeltaLink != "" {
			break
		}
		if page.NextLink == "" {
			// Non-terminal page without a continuation should not happen;
			// stop rather than loop on the same page.
			break
		}
		link = page.NextLink

		if ctx.Err() != nil {
			aborted = true
			break
		}
	}

	now := time.Now()
	s.db.Model(&models.FolderFilter{}).
		Where("account_id = ? AND folder_name = ?", account.ID, folderName).
		Update("last_sync_at", now)

	status := models.SyncLogStatusSuccess
	if aborted || counts.Failed > 0 {
		status = models.SyncLogStatusPartial
	}
	s.completeRun(runLog, status, counts, "")

	return counts, nil
}

func (s *SyncService) completeRun(runLog *models.SyncLog, status models.SyncLogStatus, counts SyncCounts, errMsg string) {
	if err := s.logs.CompleteRun(runLog, status, counts, errMsg); err != nil {
		log.Printf("Failed to complete sync log: %v", err)
	}
}

func (s *SyncService) loadCursor(accountID uint, folderName string) (*models.FolderCursor, error) {
	var cursor models.FolderCursor
	err := s.db.Where("account_id = ? AND folder_name = ?", accountID, folderName).
		FirstOrCreate(&cursor, models.FolderCursor{AccountID: accountID, FolderName: folderName}).Error
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// messageRecord pairs a message row with its attachments for insertion.
type messageRecord struct {
	message     models.SyncedMessage
	attachments []models.MessageAttachment
}

// buildRecords converts a page of remote messages into insertable records.
// Attachment downloads happen here, before the page transaction, so the
// transaction itself stays free of network calls. Per-message failures are
// counted and isolated.
func (s *SyncService) buildRecords(ctx context.Context, client *graph.Client, account *models.MailAccount, folderName string, syncType models.SyncType, messages []graph.Message) (SyncCounts, []messageRecord) {
	var counts SyncCounts
	counts.Fetched = len(messages)

	records := make([]messageRecord, 0, len(messages))
	for i := range messages {
		msg := &messages[i]

		if msg.IsRemoved() {
			// Deletion tombstone: local copies are kept, nothing to ingest.
			counts.Skipped++
			continue
		}
		if msg.IsDraft {
			counts.Skipped++
			continue
		}

		received := parseGraphTime(msg.ReceivedDateTime)
		if syncType == models.SyncTypeFull && !account.SyncStartDate.IsZero() && received.Before(account.SyncStartDate) {
			counts.Skipped++
			continue
		}

		record := messageRecord{message: s.messageToModel(account, folderName, msg, received)}

		if account.SyncAttachments && msg.HasAttachments {
			attachments, skipped, err := s.fetchAttachments(ctx, client, account, msg.ID)
			if err != nil {
				// Attachment download is best-effort: the message is still
				// stored, otherwise the advancing cursor would skip it for good.
				log.Printf("Failed to fetch attachments for message %s: %v", msg.ID, err)
				counts.AttachmentsSkipped++
			} else {
				record.attachments = attachments
				counts.AttachmentsSkipped += skipped
			}
		}

		records = append(records, record)
	}

	return counts, records
}

func (s *SyncService) messageToModel(account *models.MailAccount, folderName string, msg *graph.Message, received time.Time) models.SyncedMessage {
	body := ""
	bodyType := "text"
	if msg.Body != nil {
		body = msg.Body.Content
		if msg.Body.ContentType != "" {
			bodyType = msg.Body.ContentType
		}
	}

	return models.SyncedMessage{
		AccountID:      account.ID,
		RemoteID:       msg.ID,
		FolderName:     folderName,
		Subject:        msg.Subject,
		FromAddr:       msg.From.Address(),
		FromName:       msg.From.Name(),
		ToAddrs:        marshalAddrs(graph.Addresses(msg.ToRecipients)),
		CcAddrs:        marshalAddrs(graph.Addresses(msg.CcRecipients)),
		Body:           body,
		BodyType:       bodyType,
		ReceivedAt:     received,
		SentAt:         parseGraphTime(msg.SentDateTime),
		IsRead:         msg.IsRead,
		HasAttachments: msg.HasAttachments,
		OwnerUserID:    account.OwnerUserID,
	}
}

// fetchAttachments downloads the file attachments of one message, skipping
// non-file attachments and anything over the account's size cap.
func (s *SyncService) fetchAttachments(ctx context.Context, client *graph.Client, account *models.MailAccount, messageID string) ([]models.MessageAttachment, int, error) {
	remote, err := client.ListAttachments(ctx, account.EmailAddress, messageID)
	if err != nil {
		return nil, 0, err
	}

	maxSize := account.MaxAttachmentSizeBytes()
	var result []models.MessageAttachment
	skipped := 0

	for _, att := range remote {
		if !att.IsFileAttachment() {
			log.Printf("Skipping attachment %s on message %s: not a file attachment (%s)", att.Name, messageID, att.ODataType)
			skipped++
			continue
		}
		if att.Size > maxSize {
			log.Printf("Skipping attachment %s (%d bytes) on message %s: over size cap", att.Name, att.Size, messageID)
			skipped++
			continue
		}
		content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
		if err != nil {
			log.Printf("Skipping attachment %s on message %s: undecodable content", att.Name, messageID)
			skipped++
			continue
		}
		result = append(result, models.MessageAttachment{
			RemoteID:    att.ID,
			Filename:    att.Name,
			ContentType: att.ContentType,
			Size:        att.Size,
			Content:     content,
		})
	}

	return result, skipped, nil
}

// persistPage inserts a page of messages and advances the folder cursor in
// one transaction. Remote IDs already present are skipped via the unique
// index, so replays after a crash or cursor reset are harmless. Returns the
// number of newly created messages.
func (s *SyncService) persistPage(cursor *models.FolderCursor, records []messageRecord, nextCursor string) (int, error) {
	created := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range records {
			record := &records[i]
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record.message)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue // already synced
			}
			created++
			for j := range record.attachments {
				record.attachments[j].MessageID = record.message.ID
			}
			if len(record.attachments) > 0 {
				if err := tx.Create(&record.attachments).Error; err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.FolderCursor{}).Where("id = ?", cursor.ID).Updates(map[string]interface{}{
			"delta_link":   nextCursor,
			"last_sync_at": time.Now(),
		}).Error
	})
	if err != nil {
		return 0, err
	}
	cursor.DeltaLink = nextCursor
	return created, nil
}

// SyncAllEnabledAccounts syncs every enabled account concurrently, one
// goroutine per account. Accounts already syncing are skipped.
func (s *SyncService) SyncAllEnabledAccounts(ctx context.Context) {
	accounts, err := s.accounts.GetEnabledAccounts()
	if err != nil {
		log.Printf("Sync: failed to list enabled accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, account := range accounts {
		if !s.TryLockAccount(account.ID) {
			log.Printf("Sync already running for account %s, skipping", account.EmailAddress)
			continue
		}

		wg.Add(1)
		go func(accountID uint, email string) {
			defer wg.Done()
			defer s.UnlockAccount(accountID)

			outcome, err := s.SyncAccount(ctx, accountID, "")
			if err != nil {
				log.Printf("Sync failed for account %s: %v", email, err)
				s.logs.RecordFailure(accountID, "", models.SyncTypeDelta, err.Error())
				return
			}
			log.Printf("Sync finished for account %s: %s (%d fetched, %d created, %d skipped, %d failed)",
				email, outcome.Status, outcome.Counts.Fetched, outcome.Counts.Created,
				outcome.Counts.Skipped, outcome.Counts.Failed)
		}(account.ID, account.EmailAddress)
	}
	wg.Wait()
}

// ResetCursor clears the delta cursor for a folder (or all folders when
// folderName is empty), forcing a full fetch on the next sync.
func (s *SyncService) ResetCursor(accountID uint, folderName string) error {
	query := s.db.Model(&models.FolderCursor{}).Where("account_id = ?", accountID)
	if folderName != "" {
		query = query.Where("folder_name = ?", folderName)
	}
	return query.Update("delta_link", "").Error
}

func parseGraphTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalAddrs(addrs []string) string {
	if len(addrs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(addrs)
	if err != nil {
		return "[]"
	}
	return string(data)
}
