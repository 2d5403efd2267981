package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_SecretEncryptionRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decrypt_recovers_any_plaintext", prop.ForAll(
		func(plaintext string) bool {
			encrypted, err := encryptSecret(testEncryptionKey, plaintext)
			if err != nil {
				return false
			}
			decrypted, err := decryptSecret(testEncryptionKey, encrypted)
			if err != nil {
				return false
			}
			return decrypted == plaintext
		},
		gen.AnyString(),
	))

	properties.Property("ciphertext_never_contains_plaintext", prop.ForAll(
		func(plaintext string) bool {
			if len(plaintext) < 8 {
				return true // too short to be meaningful
			}
			encrypted, err := encryptSecret(testEncryptionKey, plaintext)
			if err != nil {
				return false
			}
			return encrypted != plaintext
		},
		gen.Identifier(),
	))

	properties.Property("wrong_key_never_decrypts", prop.ForAll(
		func(plaintext string) bool {
			encrypted, err := encryptSecret(testEncryptionKey, plaintext)
			if err != nil {
				return false
			}
			otherKey := []byte("another-encryption-key-32-bytes!")
			_, err = decryptSecret(otherKey, encrypted)
			return err == ErrDecryptionFailed
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestCredentialSecretNeverStoredPlain(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, testEncryptionKey)
	credential, err := service.CreateCredential(CreateCredentialInput{
		Name:         "plain-check",
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "super-secret-value",
		AuthorityURL: "https://login.microsoftonline.com/tenant",
	})
	if err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}

	if credential.ClientSecretEncrypted == "super-secret-value" {
		t.Fatal("client secret stored in plaintext")
	}

	decrypted, err := decryptSecret(testEncryptionKey, credential.ClientSecretEncrypted)
	if err != nil {
		t.Fatalf("decryptSecret failed: %v", err)
	}
	if decrypted != "super-secret-value" {
		t.Fatalf("decrypted secret mismatch: %q", decrypted)
	}
}

func TestUpdateCredentialSecretInvalidatesTokenCache(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, testEncryptionKey)
	credential := createTestCredential(t, db, "cache-invalidate")

	encrypted, err := encryptSecret(testEncryptionKey, "cached-token")
	if err != nil {
		t.Fatalf("encryptSecret failed: %v", err)
	}
	db.Model(credential).Update("token_cache_encrypted", encrypted)

	updated, err := service.UpdateCredential(credential.ID, UpdateCredentialInput{
		ClientSecret: "rotated-secret",
	})
	if err != nil {
		t.Fatalf("UpdateCredential failed: %v", err)
	}
	if updated.TokenCacheEncrypted != "" {
		t.Error("rotating the secret should clear the token cache")
	}
}

func TestDeleteCredentialInUse(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewCredentialService(db, testEncryptionKey)
	accountService := NewAccountService(db)
	credential := createTestCredential(t, db, "in-use")
	createTestAccount(t, accountService, credential.ID, "inuse@example.com")

	if err := service.DeleteCredential(credential.ID); err != ErrCredentialInUse {
		t.Fatalf("Expected ErrCredentialInUse, got %v", err)
	}
}
