package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/graphmail/core/internal/database/models"
	"github.com/graphmail/core/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// syncTestEnv wires a sync service against a fake Graph server that also
// serves the token endpoint.
type syncTestEnv struct {
	db       *gorm.DB
	srv      *httptest.Server
	mux      *http.ServeMux
	sync     *SyncService
	send     *SendService
	logs     *LogService
	accounts *AccountService
	account  *models.MailAccount
}

func newSyncTestEnv(t *testing.T) (*syncTestEnv, func()) {
	t.Helper()

	db, dbCleanup := setupTestDB(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	srv := httptest.NewServer(mux)

	credential := createCredentialWithAuthority(t, db, srv.URL)
	accountService := NewAccountService(db)
	account := createTestAccount(t, accountService, credential.ID, "sync@example.com")

	tokenService := NewTokenService(db, testEncryptionKey)
	clientCfg := graph.DefaultClientConfig()
	clientCfg.BaseURL = srv.URL
	clientCfg.BackoffBase = 10 * time.Millisecond
	clients := NewGraphClients(clientCfg, tokenService)
	logService := NewLogService(db)
	syncService := NewSyncService(db, clients, accountService, logService)
	sendService := NewSendService(db, clients, accountService)

	env := &syncTestEnv{
		db:       db,
		srv:      srv,
		mux:      mux,
		sync:     syncService,
		send:     sendService,
		logs:     logService,
		accounts: accountService,
		account:  account,
	}
	cleanup := func() {
		srv.Close()
		dbCleanup()
	}
	return env, cleanup
}

const deltaPath = "/users/sync@example.com/mailFolders/Inbox/messages/delta"

func graphMessage(id, subject, received string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"subject": %q,
		"body": {"contentType": "html", "content": "<p>body of %s</p>"},
		"from": {"emailAddress": {"name": "Sender", "address": "sender@example.com"}},
		"toRecipients": [{"emailAddress": {"address": "sync@example.com"}}],
		"receivedDateTime": %q,
		"sentDateTime": %q,
		"isRead": false,
		"hasAttachments": false
	}`, id, subject, id, received, received)
}

func TestSyncFullFetchAcrossPages(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	page2 := env.srv.URL + "/page2"
	deltaLink := env.srv.URL + "/next-round"

	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s,%s],"@odata.nextLink":%q}`,
			graphMessage("m1", "first", "2026-08-01T10:00:00Z"),
			graphMessage("m2", "second", "2026-08-02T10:00:00Z"),
			page2)
	})
	env.mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`,
			graphMessage("m3", "third", "2026-08-03T10:00:00Z"),
			deltaLink)
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.Counts.Fetched)
	assert.Equal(t, 3, outcome.Counts.Created)
	assert.Equal(t, 0, outcome.Counts.Failed)

	var messages []models.SyncedMessage
	require.NoError(t, env.db.Order("remote_id").Find(&messages).Error)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].RemoteID)
	assert.Equal(t, "first", messages[0].Subject)
	assert.Equal(t, "html", messages[0].BodyType)
	assert.Equal(t, env.account.OwnerUserID, messages[0].OwnerUserID)

	var cursor models.FolderCursor
	require.NoError(t, env.db.Where("account_id = ? AND folder_name = ?", env.account.ID, "Inbox").First(&cursor).Error)
	assert.Equal(t, deltaLink, cursor.DeltaLink)

	logs, err := env.logs.RecentLogs(env.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncLogStatusSuccess, logs[0].Status)
	assert.Equal(t, models.SyncTypeFull, logs[0].SyncType)
	assert.Equal(t, 3, logs[0].MessagesCreated)
}

func TestSyncReplayIsIdempotent(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	// Terminal page that always returns the same message, simulating a
	// replay after a crash between persist and the remote acknowledging.
	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`,
			graphMessage("dup-1", "hello", "2026-08-01T10:00:00Z"),
			env.srv.URL+"/replay")
	})
	env.mux.HandleFunc("/replay", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`,
			graphMessage("dup-1", "hello", "2026-08-01T10:00:00Z"),
			env.srv.URL+"/replay")
	})

	first, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counts.Created)

	second, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Counts.Created)
	assert.Equal(t, 1, second.Counts.Skipped)

	var count int64
	env.db.Model(&models.SyncedMessage{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSyncExpiredCursorFallsBackToFull(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	expired := env.srv.URL + "/expired-cursor"
	require.NoError(t, env.db.Create(&models.FolderCursor{
		AccountID:  env.account.ID,
		FolderName: "Inbox",
		DeltaLink:  expired,
	}).Error)

	env.mux.HandleFunc("/expired-cursor", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		w.Write([]byte(`{"error":{"code":"syncStateNotFound","message":"resync required"}}`))
	})
	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`,
			graphMessage("after-reset", "resynced", "2026-08-05T10:00:00Z"),
			env.srv.URL+"/fresh")
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.Counts.Created)

	var cursor models.FolderCursor
	require.NoError(t, env.db.Where("account_id = ?", env.account.ID).First(&cursor).Error)
	assert.Equal(t, env.srv.URL+"/fresh", cursor.DeltaLink)

	logs, err := env.logs.RecentLogs(env.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncTypeFull, logs[0].SyncType)
}

func TestSyncStartDateBoundsFullFetch(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	start, _ := time.Parse(time.RFC3339, "2026-06-01T00:00:00Z")
	require.NoError(t, env.db.Model(&models.MailAccount{}).
		Where("id = ?", env.account.ID).
		Update("sync_start_date", start).Error)

	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[%s,%s],"@odata.deltaLink":%q}`,
			graphMessage("old", "ancient", "2025-01-01T10:00:00Z"),
			graphMessage("new", "recent", "2026-07-01T10:00:00Z"),
			env.srv.URL+"/bounded")
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Counts.Created)
	assert.Equal(t, 1, outcome.Counts.Skipped)

	var messages []models.SyncedMessage
	require.NoError(t, env.db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, "new", messages[0].RemoteID)
}

func TestSyncTombstonesAreSkipped(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[{"id":"gone","@removed":{"reason":"deleted"}},%s],"@odata.deltaLink":%q}`,
			graphMessage("kept", "still here", "2026-08-01T10:00:00Z"),
			env.srv.URL+"/tomb")
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Counts.Created)
	assert.Equal(t, 1, outcome.Counts.Skipped)

	var count int64
	env.db.Model(&models.SyncedMessage{}).Where("remote_id = ?", "gone").Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestSyncAttachmentSizeCap(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	require.NoError(t, env.db.Model(&models.MailAccount{}).
		Where("id = ?", env.account.ID).
		Update("max_attachment_size_mb", 1).Error)

	small := base64.StdEncoding.EncodeToString([]byte("small file content"))

	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		msg := `{
			"id": "with-att",
			"subject": "attachments",
			"body": {"contentType": "text", "content": "see attached"},
			"from": {"emailAddress": {"address": "sender@example.com"}},
			"receivedDateTime": "2026-08-01T10:00:00Z",
			"hasAttachments": true
		}`
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`, msg, env.srv.URL+"/att-done")
	})
	env.mux.HandleFunc("/users/sync@example.com/messages/with-att/attachments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[
			{"@odata.type":"#microsoft.graph.fileAttachment","id":"a1","name":"small.txt","contentType":"text/plain","size":18,"contentBytes":%q},
			{"@odata.type":"#microsoft.graph.fileAttachment","id":"a2","name":"huge.bin","contentType":"application/octet-stream","size":5242880,"contentBytes":""},
			{"@odata.type":"#microsoft.graph.itemAttachment","id":"a3","name":"nested","size":10}
		]}`, small)
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Counts.Created)
	// the oversized file and the item attachment
	assert.Equal(t, 2, outcome.Counts.AttachmentsSkipped)

	var attachments []models.MessageAttachment
	require.NoError(t, env.db.Find(&attachments).Error)
	require.Len(t, attachments, 1)
	assert.Equal(t, "small.txt", attachments[0].Filename)
	assert.Equal(t, []byte("small file content"), attachments[0].Content)
}

func TestSyncAttachmentFetchFailureKeepsMessage(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	env.mux.HandleFunc(deltaPath, func(w http.ResponseWriter, r *http.Request) {
		msg := `{
			"id": "att-down",
			"subject": "attachments unavailable",
			"body": {"contentType": "text", "content": "see attached"},
			"from": {"emailAddress": {"address": "sender@example.com"}},
			"receivedDateTime": "2026-08-01T10:00:00Z",
			"hasAttachments": true
		}`
		fmt.Fprintf(w, `{"value":[%s],"@odata.deltaLink":%q}`, msg, env.srv.URL+"/att-fail-done")
	})
	env.mux.HandleFunc("/users/sync@example.com/messages/att-down/attachments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	outcome, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Counts.Created)
	assert.Equal(t, 1, outcome.Counts.AttachmentsSkipped)

	// The message must be stored even though its attachments were not:
	// the cursor advances past this page and never offers it again.
	var count int64
	env.db.Model(&models.SyncedMessage{}).Where("remote_id = ?", "att-down").Count(&count)
	assert.Equal(t, int64(1), count)

	var cursor models.FolderCursor
	require.NoError(t, env.db.Where("account_id = ?", env.account.ID).First(&cursor).Error)
	assert.Equal(t, env.srv.URL+"/att-fail-done", cursor.DeltaLink)
}

func TestSyncExpiredBudgetMarksOutcomePartial(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := env.sync.SyncAccount(ctx, env.account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPartial, outcome.Status, "unattempted folders must not report a clean run")
	assert.Equal(t, 0, outcome.FoldersSynced)
	assert.NotEmpty(t, outcome.Error)
}

func TestSyncDisabledAccountRejected(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	require.NoError(t, env.db.Model(&models.MailAccount{}).
		Where("id = ?", env.account.ID).
		Update("enabled", false).Error)

	_, err := env.sync.SyncAccount(context.Background(), env.account.ID, "")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAccountLockPreventsConcurrentSync(t *testing.T) {
	env, cleanup := newSyncTestEnv(t)
	defer cleanup()

	require.True(t, env.sync.TryLockAccount(env.account.ID))
	assert.False(t, env.sync.TryLockAccount(env.account.ID))
	assert.True(t, env.sync.IsAccountSyncing(env.account.ID))

	env.sync.UnlockAccount(env.account.ID)
	assert.True(t, env.sync.TryLockAccount(env.account.ID))
	env.sync.UnlockAccount(env.account.ID)
}
