// Package archive exports encrypted snapshot bundles to off-host storage.
// Snapshots are serialized to JSON, encrypted with age, and written to a
// vault backend (filesystem, S3, or memory). The database remains the
// authority for restore; exports exist so a compromised host does not also
// lose the last known-good guild state.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"guard-go/internal/model"
)

// Vault is a write-mostly blob store for encrypted exports.
type Vault interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string, w io.Writer) error
	ValidateSetup(ctx context.Context) error
}

// Encryptor encrypts export payloads. Decryption requires unlocking the
// private key with a passphrase first.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for reading exports back.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Bundle is the serialized form of one export.
type Bundle struct {
	GuildID    string                  `json:"guild_id"`
	ExportedAt time.Time               `json:"exported_at"`
	Roles      []model.RoleSnapshot    `json:"roles"`
	Channels   []model.ChannelSnapshot `json:"channels"`
}

// Writer assembles, encrypts, and stores export bundles.
type Writer struct {
	vault     Vault
	encryptor Encryptor
	guildID   string
}

// NewWriter creates a Writer for the given guild.
func NewWriter(vault Vault, encryptor Encryptor, guildID string) *Writer {
	return &Writer{vault: vault, encryptor: encryptor, guildID: guildID}
}

// Key returns the vault key for an export taken at the given time.
func (w *Writer) Key(at time.Time) string {
	return fmt.Sprintf("%s/%s.json.age", w.guildID, at.UTC().Format("2006-01-02T15-04-05Z"))
}

// Export encrypts and stores a bundle of the given snapshots. Returns the
// vault key the bundle was written under.
func (w *Writer) Export(ctx context.Context, roles []model.RoleSnapshot, channels []model.ChannelSnapshot, at time.Time) (string, error) {
	if !w.encryptor.IsConfigured() {
		return "", fmt.Errorf("encryption keys not configured; run config init first")
	}

	bundle := Bundle{
		GuildID:    w.guildID,
		ExportedAt: at.UTC(),
		Roles:      roles,
		Channels:   channels,
	}

	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("encoding export bundle: %w", err)
	}

	var ciphertext bytes.Buffer
	if err := w.encryptor.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		return "", fmt.Errorf("encrypting export bundle: %w", err)
	}

	key := w.Key(at)
	if err := w.vault.Put(ctx, key, &ciphertext); err != nil {
		return "", fmt.Errorf("storing export bundle: %w", err)
	}
	return key, nil
}

// Load fetches and decrypts a stored bundle.
func (w *Writer) Load(ctx context.Context, key string, dec DecryptionContext) (*Bundle, error) {
	var ciphertext bytes.Buffer
	if err := w.vault.Get(ctx, key, &ciphertext); err != nil {
		return nil, fmt.Errorf("fetching export bundle: %w", err)
	}

	var plaintext bytes.Buffer
	if err := dec.Decrypt(&ciphertext, &plaintext); err != nil {
		return nil, fmt.Errorf("decrypting export bundle: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(plaintext.Bytes(), &bundle); err != nil {
		return nil, fmt.Errorf("decoding export bundle: %w", err)
	}
	return &bundle, nil
}
