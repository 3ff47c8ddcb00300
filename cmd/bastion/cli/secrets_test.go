package cli

import (
	"testing"

	"github.com/majorcontext/bastion/internal/secretbox"
	"github.com/majorcontext/bastion/internal/store"
)

func testCodecs(t *testing.T) (cred, pii *secretbox.Codec) {
	t.Helper()
	var err error
	cred, err = secretbox.NewFromSecret([]byte("master"), "credentials")
	if err != nil {
		t.Fatal(err)
	}
	pii, err = secretbox.NewFromSecret([]byte("master"), "pii")
	if err != nil {
		t.Fatal(err)
	}
	return cred, pii
}

func TestEncryptRecord_PlaintextFields(t *testing.T) {
	cred, pii := testCodecs(t)

	rec := &store.Record{
		UserID:        "u1",
		Credential:    "sk-ant-plaintext",
		TelegramToken: "123:token",
		Email:         "user@example.com",
	}

	changed, err := encryptRecord(rec, cred, pii)
	if err != nil {
		t.Fatalf("encryptRecord() error = %v", err)
	}
	if !changed {
		t.Fatal("expected plaintext fields to be migrated")
	}

	for name, value := range map[string]string{
		"Credential":    rec.Credential,
		"TelegramToken": rec.TelegramToken,
		"Email":         rec.Email,
	} {
		if !secretbox.IsEncrypted(value) {
			t.Errorf("%s not encrypted after migration", name)
		}
	}

	plain, err := pii.Decrypt(rec.Email)
	if err != nil || plain != "user@example.com" {
		t.Errorf("email round trip = %q, %v", plain, err)
	}
}

func TestEncryptRecord_SecondPassIsNoop(t *testing.T) {
	cred, pii := testCodecs(t)

	rec := &store.Record{UserID: "u1", Credential: "sk-ant-x", Email: "a@b.c"}
	if _, err := encryptRecord(rec, cred, pii); err != nil {
		t.Fatal(err)
	}

	before := *rec
	changed, err := encryptRecord(rec, cred, pii)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if changed {
		t.Error("second pass must not change anything")
	}
	if *rec != before {
		t.Error("second pass mutated the record")
	}
}

func TestEncryptRecord_EmptyFieldsIgnored(t *testing.T) {
	cred, pii := testCodecs(t)

	rec := &store.Record{UserID: "u1"}
	changed, err := encryptRecord(rec, cred, pii)
	if err != nil {
		t.Fatalf("encryptRecord() error = %v", err)
	}
	if changed {
		t.Error("empty fields must not be encrypted")
	}
}
