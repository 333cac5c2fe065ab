package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedField holds an envelope-encrypted value: the ciphertext, the
// KMS-wrapped data key that encrypted it, and the master key id.
type EncryptedField struct {
	Ciphertext   string `json:"ciphertext"`
	EncryptedDEK string `json:"encrypted_dek"`
	KeyID        string `json:"key_id"`
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
	keyID      string
}

// Manager encrypts PII fields with AES-256-GCM under per-field data keys
// wrapped by AWS KMS. When KMS is disabled (development), data keys are
// generated locally and stored base64 encoded in place of the wrapped key.
type Manager struct {
	kmsClient *kms.Client
	cfg       config.KMSConfig
	logger    *zap.Logger

	keyCache sync.Map // encrypted DEK -> plaintext DEK
}

func NewManager(cfg config.KMSConfig, kmsClient *kms.Client, logger *zap.Logger) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		cfg:       cfg,
		logger:    logger,
	}
}

// Encrypt encrypts plaintext and returns the envelope.
func (m *Manager) Encrypt(ctx context.Context, plaintext string) (*EncryptedField, error) {
	key, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key.plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	encryptedDEK := base64.StdEncoding.EncodeToString(key.ciphertext)
	m.keyCache.Store(encryptedDEK, key.plaintext)

	return &EncryptedField{
		Ciphertext:   base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK: encryptedDEK,
		KeyID:        key.keyID,
	}, nil
}

// Decrypt unwraps the data key and decrypts the field.
func (m *Manager) Decrypt(ctx context.Context, field *EncryptedField) (string, error) {
	if cached, ok := m.keyCache.Load(field.EncryptedDEK); ok {
		return m.decryptWithKey(field.Ciphertext, cached.([]byte))
	}

	var plaintextDEK []byte
	if m.cfg.Enabled {
		ciphertextBlob, err := base64.StdEncoding.DecodeString(field.EncryptedDEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}

		result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: ciphertextBlob,
		})
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	} else {
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(field.EncryptedDEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	m.keyCache.Store(field.EncryptedDEK, plaintextDEK)

	return m.decryptWithKey(field.Ciphertext, plaintextDEK)
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !m.cfg.Enabled {
		return m.generateLocalKey()
	}

	result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.cfg.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &dataKey{
		plaintext:  result.Plaintext,
		ciphertext: result.CiphertextBlob,
		keyID:      m.cfg.KeyID,
	}, nil
}

func (m *Manager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate local key: %w", err)
	}

	// In development the key is not wrapped at all: the stored DEK is the
	// base64 of the plaintext key.
	return &dataKey{
		plaintext:  key,
		ciphertext: key,
		keyID:      uuid.New().String(),
	}, nil
}

func (m *Manager) decryptWithKey(ciphertextB64 string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// ClearCache drops all cached data keys.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(key, _ interface{}) bool {
		m.keyCache.Delete(key)
		return true
	})
	m.logger.Debug("encryption key cache cleared")
}
