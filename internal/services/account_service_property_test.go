package services

import (
	"fmt"
	"os"
	"testing"

	"github.com/graphmail/core/internal/database/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// Create a temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	// Open database
	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.TenantCredential{},
		&models.MailAccount{},
		&models.FolderFilter{},
		&models.FolderCursor{},
		&models.SyncedMessage{},
		&models.MessageAttachment{},
		&models.SyncLog{},
		&models.OutboundMessage{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

var testEncryptionKey = []byte("test-encryption-key-32-bytes!!!!")

func createTestCredential(t *testing.T, db *gorm.DB, name string) *models.TenantCredential {
	service := NewCredentialService(db, testEncryptionKey)
	credential, err := service.CreateCredential(CreateCredentialInput{
		Name:         name,
		TenantID:     "00000000-0000-0000-0000-000000000001",
		ClientID:     "client-" + name,
		ClientSecret: "secret-" + name,
		AuthorityURL: "https://login.microsoftonline.com/test-tenant",
	})
	if err != nil {
		t.Fatalf("Failed to create test credential: %v", err)
	}
	return credential
}

func createTestAccount(t *testing.T, service *AccountService, credentialID uint, email string) *models.MailAccount {
	account, err := service.CreateAccount(CreateAccountInput{
		EmailAddress:    email,
		DisplayName:     "Test Account",
		OwnerUserID:     "owner-1",
		CredentialID:    credentialID,
		SyncAttachments: true,
	})
	if err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}

func TestProperty_AccountStatusSwitchIdempotency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("repeating_enable_or_disable_keeps_state", prop.ForAll(
		func(enable bool, repeats int) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewAccountService(db)
			credential := createTestCredential(t, db, "cred-idem")
			account := createTestAccount(t, service, credential.ID, "idem@example.com")

			for i := 0; i < repeats; i++ {
				updated, err := service.SetAccountEnabled(account.ID, enable)
				if err != nil {
					return false
				}
				if updated.Enabled != enable {
					return false
				}
			}

			reloaded, err := service.GetAccountByID(account.ID)
			if err != nil {
				return false
			}
			return reloaded.Enabled == enable
		},
		gen.Bool(),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestProperty_AtMostOneSendingAccount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// However send-eligibility is toggled across a set of accounts, the
	// database never holds more than one account with the flag set.
	properties.Property("sending_flag_is_a_singleton", prop.ForAll(
		func(accountCount int, toggles []int) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewAccountService(db)
			credential := createTestCredential(t, db, "cred-send")

			ids := make([]uint, 0, accountCount)
			for i := 0; i < accountCount; i++ {
				account := createTestAccount(t, service, credential.ID,
					fmt.Sprintf("send%d@example.com", i))
				ids = append(ids, account.ID)
			}

			for _, toggle := range toggles {
				id := ids[toggle%len(ids)]
				// Errors are expected when another account already holds
				// the flag; the invariant below is what matters.
				_, _ = service.SetUseForSending(id, toggle%2 == 0)

				var count int64
				if err := db.Model(&models.MailAccount{}).
					Where("use_for_sending = ?", true).
					Count(&count).Error; err != nil {
					return false
				}
				if count > 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.SliceOfN(6, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func TestProperty_DuplicateAccountRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("same_mailbox_under_same_credential_is_rejected", prop.ForAll(
		func(attempts int) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewAccountService(db)
			credential := createTestCredential(t, db, "cred-dup")
			createTestAccount(t, service, credential.ID, "dup@example.com")

			for i := 0; i < attempts; i++ {
				_, err := service.CreateAccount(CreateAccountInput{
					EmailAddress: "dup@example.com",
					OwnerUserID:  "owner-2",
					CredentialID: credential.ID,
				})
				if err != ErrAccountAlreadyExists {
					return false
				}
			}

			var count int64
			db.Model(&models.MailAccount{}).Count(&count)
			return count == 1
		},
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}

func TestCreateAccountDefaultFolderFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db)
	credential := createTestCredential(t, db, "cred-folders")
	account := createTestAccount(t, service, credential.ID, "folders@example.com")

	if len(account.FolderFilters) != 0 {
		t.Fatalf("CreateAccount should not preload filters, got %d", len(account.FolderFilters))
	}

	reloaded, err := service.GetAccountByID(account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if len(reloaded.FolderFilters) != 2 {
		t.Fatalf("Expected 2 default folder filters, got %d", len(reloaded.FolderFilters))
	}

	byName := map[string]bool{}
	for _, f := range reloaded.FolderFilters {
		byName[f.FolderName] = f.SyncEnabled
	}
	if !byName["Inbox"] {
		t.Error("Inbox should be sync-enabled by default")
	}
	if enabled, ok := byName["Sent Items"]; !ok || enabled {
		t.Error("Sent Items should exist and be disabled by default")
	}
}

func TestDisabledFlagsSurviveInsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db)
	credential := createTestCredential(t, db, "cred-flags")

	account, err := service.CreateAccount(CreateAccountInput{
		EmailAddress:    "noatt@example.com",
		OwnerUserID:     "owner-1",
		CredentialID:    credential.ID,
		SyncAttachments: false,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	var stored models.MailAccount
	if err := db.First(&stored, account.ID).Error; err != nil {
		t.Fatalf("Failed to reload account: %v", err)
	}
	if stored.SyncAttachments {
		t.Error("SyncAttachments false should survive the insert")
	}

	if _, err := service.UpdateFolderFilters(account.ID, []FolderFilterInput{
		{FolderName: "Inbox", SyncEnabled: false},
		{FolderName: "Archive", SyncEnabled: true},
	}); err != nil {
		t.Fatalf("UpdateFolderFilters failed: %v", err)
	}

	var inbox models.FolderFilter
	if err := db.Where("account_id = ? AND folder_name = ?", account.ID, "Inbox").First(&inbox).Error; err != nil {
		t.Fatalf("Failed to reload filter: %v", err)
	}
	if inbox.SyncEnabled {
		t.Error("disabling a folder filter should persist false")
	}
}

func TestCreateAccountUnderDisabledCredential(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	credService := NewCredentialService(db, testEncryptionKey)
	service := NewAccountService(db)
	credential := createTestCredential(t, db, "cred-disabled")
	if _, err := credService.SetCredentialEnabled(credential.ID, false, "auth failed"); err != nil {
		t.Fatalf("Failed to disable credential: %v", err)
	}

	_, err := service.CreateAccount(CreateAccountInput{
		EmailAddress: "blocked@example.com",
		OwnerUserID:  "owner-1",
		CredentialID: credential.ID,
	})
	if err != ErrCredentialDisabled {
		t.Fatalf("Expected ErrCredentialDisabled, got %v", err)
	}
}
