package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/scrypt"
)

const (
	envelopeMagic   = "CTXE"
	envelopeVersion = byte(1)
	saltSize        = 16
	nonceSize       = 12
)

// EncryptOptions captures configuration for EncryptFile.
type EncryptOptions struct {
	InputPath  string
	OutputPath string
	Passphrase string
	Overwrite  bool
}

// EncryptResult describes the outcome of encryption.
type EncryptResult struct {
	OutputPath string
	Checksum   string
}

// IsEncrypted reports whether the payload carries the ctxctl envelope header.
// Plain YAML or JSON layer files never start with the magic bytes.
func IsEncrypted(payload []byte) bool {
	if len(payload) < len(envelopeMagic)+1 {
		return false
	}
	return string(payload[:len(envelopeMagic)]) == envelopeMagic
}

// EncryptFile encrypts a plaintext layer file and writes the binary envelope to disk.
func EncryptFile(opts EncryptOptions) (*EncryptResult, error) {
	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, NewError(ErrCodeValidation, errors.New("input and output paths are required"))
	}
	if opts.Passphrase == "" {
		return nil, NewError(ErrCodeValidation, errors.New("passphrase cannot be empty"))
	}

	if !opts.Overwrite {
		if _, err := os.Stat(opts.OutputPath); err == nil {
			return nil, NewError(ErrCodeValidation, fmt.Errorf("output file %s already exists (use --confirm to overwrite)", opts.OutputPath))
		}
	}

	plaintext, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return nil, NewError(ErrCodeValidation, fmt.Errorf("read input file: %w", err))
	}
	if len(bytes.TrimSpace(plaintext)) == 0 {
		return nil, NewError(ErrCodeValidation, errors.New("input file is empty"))
	}

	envelope, checksum, err := seal(plaintext, opts.Passphrase)
	zeroBytes(plaintext)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(opts.OutputPath, envelope, 0o600); err != nil {
		return nil, NewError(ErrCodeEncryption, fmt.Errorf("write output file: %w", err))
	}

	return &EncryptResult{
		OutputPath: opts.OutputPath,
		Checksum:   checksum,
	}, nil
}

// Decrypt opens an envelope produced by EncryptFile and returns the plaintext.
func Decrypt(payload []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, NewError(ErrCodeValidation, errors.New("passphrase cannot be empty"))
	}

	headerSize := len(envelopeMagic) + 1
	minSize := headerSize + saltSize + nonceSize + 1
	if len(payload) < minSize {
		return nil, NewError(ErrCodeEncryption, errors.New("encrypted payload too small"))
	}
	if !IsEncrypted(payload) {
		return nil, NewError(ErrCodeEncryption, errors.New("invalid envelope header"))
	}
	if payload[len(envelopeMagic)] != envelopeVersion {
		return nil, NewError(ErrCodeEncryption, fmt.Errorf("unsupported envelope version %d", payload[len(envelopeMagic)]))
	}

	offset := headerSize
	salt := payload[offset : offset+saltSize]
	offset += saltSize
	nonce := payload[offset : offset+nonceSize]
	offset += nonceSize
	ciphertext := payload[offset:]

	aead, key, err := deriveAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData())
	if err != nil {
		return nil, NewError(ErrCodeEncryption, fmt.Errorf("decrypt: %w", err))
	}
	return plaintext, nil
}

// DecryptFile decrypts an encrypted layer file and returns plaintext bytes.
func DecryptFile(inputPath, passphrase string) ([]byte, error) {
	if inputPath == "" {
		return nil, NewError(ErrCodeValidation, errors.New("input path is required"))
	}
	payload, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, NewError(ErrCodeValidation, fmt.Errorf("read input file: %w", err))
	}
	return Decrypt(payload, passphrase)
}

func seal(plaintext []byte, passphrase string) ([]byte, string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, "", NewError(ErrCodeEncryption, fmt.Errorf("generate salt: %w", err))
	}

	aead, key, err := deriveAEAD(passphrase, salt)
	if err != nil {
		return nil, "", err
	}
	defer zeroBytes(key)

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", NewError(ErrCodeEncryption, fmt.Errorf("generate nonce: %w", err))
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, additionalData())

	buf := bytes.NewBuffer(nil)
	buf.Write(additionalData())
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(ciphertext)

	checksum := sha256.Sum256(ciphertext)
	return buf.Bytes(), fmt.Sprintf("%x", checksum), nil
}

func deriveAEAD(passphrase string, salt []byte) (cipher.AEAD, []byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, nil, NewError(ErrCodeEncryption, fmt.Errorf("derive key: %w", err))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		zeroBytes(key)
		return nil, nil, NewError(ErrCodeEncryption, fmt.Errorf("create cipher: %w", err))
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		zeroBytes(key)
		return nil, nil, NewError(ErrCodeEncryption, fmt.Errorf("create gcm: %w", err))
	}
	return aead, key, nil
}

func additionalData() []byte {
	return append([]byte(envelopeMagic), envelopeVersion)
}

func zeroBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
