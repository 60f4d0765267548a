package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// encrypt.go - AES-256-GCM шифрование секретов в конфигурации
//
// Токен провайдера счетов можно хранить в окружении в виде "enc:<base64>".
// Формат шифротекста: base64(nonce || ciphertext || tag).

// SealedPrefix помечает зашифрованное значение в конфигурации
const SealedPrefix = "enc:"

var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// Encrypt шифрует строку ключом длиной 32 байта
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt расшифровывает результат Encrypt
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// IsSealed возвращает true если значение зашифровано
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal шифрует секрет и добавляет префикс "enc:"
func Seal(plaintext, key string) (string, error) {
	ct, err := Encrypt(plaintext, []byte(key))
	if err != nil {
		return "", err
	}
	return SealedPrefix + ct, nil
}

// Open возвращает секрет в открытом виде.
// Значения без префикса "enc:" возвращаются как есть.
func Open(value, key string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	return Decrypt(strings.TrimPrefix(value, SealedPrefix), []byte(key))
}

// GenerateKey создает случайный ключ для ENCRYPTION_KEY.
// 16 случайных байт в hex дают ровно 32 ASCII символа.
func GenerateKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
