package services

import (
	"errors"
	"strings"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound indicates the mail account was not found
	ErrAccountNotFound = errors.New("mail account not found")
	// ErrAccountAlreadyExists indicates the mailbox is already configured under this credential
	ErrAccountAlreadyExists = errors.New("mail account already exists for this credential")
	// ErrAccountDisabled indicates the mail account is disabled
	ErrAccountDisabled = errors.New("mail account is disabled")
	// ErrInvalidAccountData indicates invalid account data
	ErrInvalidAccountData = errors.New("invalid account data")
	// ErrSendingAccountExists indicates another account is already send-eligible
	ErrSendingAccountExists = errors.New("another account is already marked for sending")
	// ErrNoSendingAccount indicates no enabled account is marked for sending
	ErrNoSendingAccount = errors.New("no enabled account is marked for sending")
)

// AccountService handles mail account management
type AccountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountService instance
func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{db: db}
}

// CreateAccountInput represents the input for creating a mail account
type CreateAccountInput struct {
	EmailAddress            string
	DisplayName             string
	AccountKind             models.AccountKind
	OwnerUserID             string
	CredentialID            uint
	SyncStartDate           time.Time
	SyncAttachments         bool
	MaxAttachmentSizeMB     int
	UseForSending           bool
	AlwaysUseAccountAddress bool
	Footer                  string
}

// CreateAccount creates a new mail account under an existing, enabled
// credential. Inbox is sync-enabled by default, Sent Items is present but
// disabled so it can be switched on without guessing the folder name.
func (s *AccountService) CreateAccount(input CreateAccountInput) (*models.MailAccount, error) {
	email := strings.ToLower(strings.TrimSpace(input.EmailAddress))
	if email == "" || !strings.Contains(email, "@") || input.OwnerUserID == "" {
		return nil, ErrInvalidAccountData
	}

	kind := input.AccountKind
	if kind == "" {
		kind = models.AccountKindUser
	}
	if !kind.IsValid() {
		return nil, ErrInvalidAccountData
	}

	var credential models.TenantCredential
	if err := s.db.First(&credential, input.CredentialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	if !credential.Enabled {
		return nil, ErrCredentialDisabled
	}

	var existing models.MailAccount
	err := s.db.Where("credential_id = ? AND email_address = ?", input.CredentialID, email).First(&existing).Error
	if err == nil {
		return nil, ErrAccountAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if input.UseForSending {
		if err := s.ensureNoOtherSender(0); err != nil {
			return nil, err
		}
	}

	maxSize := input.MaxAttachmentSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}

	account := &models.MailAccount{
		EmailAddress:            email,
		DisplayName:             input.DisplayName,
		AccountKind:             kind,
		OwnerUserID:             input.OwnerUserID,
		CredentialID:            input.CredentialID,
		Enabled:                 true,
		SyncStartDate:           input.SyncStartDate,
		SyncAttachments:         input.SyncAttachments,
		MaxAttachmentSizeMB:     maxSize,
		UseForSending:           input.UseForSending,
		AlwaysUseAccountAddress: input.AlwaysUseAccountAddress,
		Footer:                  input.Footer,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		filters := []models.FolderFilter{
			{AccountID: account.ID, FolderName: "Inbox", SyncEnabled: true},
			{AccountID: account.ID, FolderName: "Sent Items", SyncEnabled: false},
		}
		return tx.Create(&filters).Error
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccountByID retrieves a mail account by ID
func (s *AccountService) GetAccountByID(id uint) (*models.MailAccount, error) {
	var account models.MailAccount
	if err := s.db.Preload("FolderFilters").First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListAccounts retrieves all mail accounts
func (s *AccountService) ListAccounts() ([]models.MailAccount, error) {
	var accounts []models.MailAccount
	if err := s.db.Preload("FolderFilters").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetEnabledAccounts retrieves all enabled accounts whose credential is
// also enabled. Accounts under a disabled credential are skipped, not failed.
func (s *AccountService) GetEnabledAccounts() ([]models.MailAccount, error) {
	var accounts []models.MailAccount
	err := s.db.Joins("JOIN tenant_credentials ON tenant_credentials.id = mail_accounts.credential_id").
		Where("mail_accounts.enabled = ? AND tenant_credentials.enabled = ?", true, true).
		Preload("FolderFilters").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateAccountInput represents the input for updating a mail account
type UpdateAccountInput struct {
	DisplayName             *string
	SyncAttachments         *bool
	MaxAttachmentSizeMB     *int
	AlwaysUseAccountAddress *bool
	Footer                  *string
}

// UpdateAccount updates mutable account settings
func (s *AccountService) UpdateAccount(id uint, input UpdateAccountInput) (*models.MailAccount, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		account.DisplayName = *input.DisplayName
	}
	if input.SyncAttachments != nil {
		account.SyncAttachments = *input.SyncAttachments
	}
	if input.MaxAttachmentSizeMB != nil && *input.MaxAttachmentSizeMB > 0 {
		account.MaxAttachmentSizeMB = *input.MaxAttachmentSizeMB
	}
	if input.AlwaysUseAccountAddress != nil {
		account.AlwaysUseAccountAddress = *input.AlwaysUseAccountAddress
	}
	if input.Footer != nil {
		account.Footer = *input.Footer
	}

	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	return account, nil
}

// SetAccountEnabled enables or disables an account. Disabling is idempotent
// and does not touch stored messages or cursors.
func (s *AccountService) SetAccountEnabled(id uint, enabled bool) (*models.MailAccount, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return nil, err
	}

	if account.Enabled == enabled {
		return account, nil
	}

	account.Enabled = enabled
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	return account, nil
}

// SetUseForSending marks or unmarks an account as the outbound sender.
// At most one account may be send-eligible at a time.
func (s *AccountService) SetUseForSending(id uint, useForSending bool) (*models.MailAccount, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return nil, err
	}

	if useForSending {
		if err := s.ensureNoOtherSender(id); err != nil {
			return nil, err
		}
	}

	account.UseForSending = useForSending
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	return account, nil
}

// ensureNoOtherSender returns ErrSendingAccountExists when an account other
// than excludeID is already marked for sending.
func (s *AccountService) ensureNoOtherSender(excludeID uint) error {
	var count int64
	err := s.db.Model(&models.MailAccount{}).
		Where("use_for_sending = ? AND id <> ?", true, excludeID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSendingAccountExists
	}
	return nil
}

// GetSendingAccount returns the single enabled account marked for sending.
func (s *AccountService) GetSendingAccount() (*models.MailAccount, error) {
	var accounts []models.MailAccount
	err := s.db.Where("use_for_sending = ? AND enabled = ?", true, true).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	if len(accounts) != 1 {
		return nil, ErrNoSendingAccount
	}
	return &accounts[0], nil
}

// FolderFilterInput represents one folder entry of a filter update
type FolderFilterInput struct {
	FolderName  string `json:"folder_name"`
	SyncEnabled bool   `json:"sync_enabled"`
}

// UpdateFolderFilters replaces the folder filter set of an account
func (s *AccountService) UpdateFolderFilters(id uint, filters []FolderFilterInput) ([]models.FolderFilter, error) {
	if _, err := s.GetAccountByID(id); err != nil {
		return nil, err
	}

	result := make([]models.FolderFilter, 0, len(filters))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&models.FolderFilter{}).Error; err != nil {
			return err
		}
		for _, f := range filters {
			name := strings.TrimSpace(f.FolderName)
			if name == "" {
				return ErrInvalidAccountData
			}
			filter := models.FolderFilter{
				AccountID:   id,
				FolderName:  name,
				SyncEnabled: f.SyncEnabled,
			}
			if err := tx.Create(&filter).Error; err != nil {
				return err
			}
			result = append(result, filter)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// recordSyncResult updates the sync status fields on an account
func (s *AccountService) recordSyncResult(id uint, status, errMsg string, at time.Time) error {
	return s.db.Model(&models.MailAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_sync_at":     at,
		"last_sync_status": status,
		"last_sync_error":  errMsg,
	}).Error
}

// DeleteAccount removes an account together with its folder filters,
// cursors, synced messages and logs.
func (s *AccountService) DeleteAccount(id uint) error {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&models.FolderFilter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.FolderCursor{}).Error; err != nil {
			return err
		}
		var messageIDs []uint
		if err := tx.Model(&models.SyncedMessage{}).Where("account_id = ?", id).Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		if len(messageIDs) > 0 {
			if err := tx.Where("message_id IN ?", messageIDs).Delete(&models.MessageAttachment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.SyncedMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.SyncLog{}).Error; err != nil {
			return err
		}
		return tx.Delete(account).Error
	})
}
