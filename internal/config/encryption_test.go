// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package config

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor("a-sufficiently-long-test-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor failed: %v", err)
	}

	token := "untappd-access-token-abc123"
	ciphertext, err := enc.Encrypt(token)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if strings.Contains(ciphertext, token) {
		t.Error("ciphertext must not contain the plaintext")
	}

	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plaintext != token {
		t.Errorf("round trip mismatch: got %q, want %q", plaintext, token)
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	enc, err := NewCredentialEncryptor("a-sufficiently-long-test-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor failed: %v", err)
	}

	a, _ := enc.Encrypt("same-token")
	b, _ := enc.Encrypt("same-token")
	if a == b {
		t.Error("nonce reuse: two encryptions of the same plaintext are identical")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, err := NewCredentialEncryptor("a-sufficiently-long-test-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor failed: %v", err)
	}

	ciphertext, _ := enc.Encrypt("token")
	tampered := "A" + ciphertext[1:]

	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("expected tampered ciphertext to fail decryption")
	}
}

func TestDecryptRejectsShortInput(t *testing.T) {
	enc, err := NewCredentialEncryptor("a-sufficiently-long-test-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor failed: %v", err)
	}

	if _, err := enc.Decrypt("c2hvcnQ="); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestNewCredentialEncryptorRejectsEmptySecret(t *testing.T) {
	if _, err := NewCredentialEncryptor(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestDifferentSecretsCannotDecrypt(t *testing.T) {
	encA, _ := NewCredentialEncryptor("secret-a-0123456789")
	encB, _ := NewCredentialEncryptor("secret-b-0123456789")

	ciphertext, _ := encA.Encrypt("token")
	if _, err := encB.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}
