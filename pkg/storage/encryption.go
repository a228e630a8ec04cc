package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/types"
)

// sealedDatabase encrypts session tokens before they reach the wrapped
// provider. Without a key it never stores sessions at all.
type sealedDatabase struct {
	Database
	gcm cipher.AEAD
}

// WithSessionEncryption wraps db so session tokens are stored AES-GCM
// encrypted with key. An empty key disables session persistence.
func WithSessionEncryption(db Database, key string) (Database, error) {
	s := &sealedDatabase{Database: db}
	if key == "" {
		return s, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length %d (must be 32 bytes)", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	s.gcm, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return s, nil
}

func (s *sealedDatabase) GetSession(ctx context.Context, account string) (types.Session, error) {
	if s.gcm == nil {
		return types.Session{}, fmt.Errorf("%w: persistence disabled", ErrSessionNotFound)
	}
	sess, err := s.Database.GetSession(ctx, account)
	if err != nil {
		return types.Session{}, err
	}
	token, err := s.decrypt(sess.Token)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decrypt stored session", slog.String("account", account), slog.Any("error", err))
		return types.Session{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	sess.Token = token
	return sess, nil
}

func (s *sealedDatabase) SetSession(ctx context.Context, session types.Session) error {
	if s.gcm == nil {
		return nil
	}
	token, err := s.encrypt(session.Token)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to encrypt session", slog.Any("error", err))
		return err
	}
	session.Token = token
	return s.Database.SetSession(ctx, session)
}

func (s *sealedDatabase) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *sealedDatabase) decrypt(encoded string) (string, error) {
	encrypted, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode session token: %w", err)
	}
	if len(encrypted) < s.gcm.NonceSize() {
		return "", errors.New("malformed encrypted session token")
	}
	nonce, ciphertext := encrypted[:s.gcm.NonceSize()], encrypted[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt session token: %w", err)
	}
	return string(plaintext), nil
}
