package fixture

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// keyMaterial is the column data of a key row.
type keyMaterial struct {
	publicKey  string
	privateKey string
	salt       string
	// passphrase is the bcrypt hash of the key password. It encrypts the
	// private key PEM.
	passphrase string
}

// generateKeyMaterial creates an RSA key pair and locks the private key with
// AES-256-CBC under the bcrypt hash of password. The salt column holds the
// 22 character salt embedded in that hash.
func generateKeyMaterial(bits int, password string, cost int) (keyMaterial, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("generate key pair: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("hash key password: %w", err)
	}
	salt, err := bcryptSalt(string(hash))
	if err != nil {
		return keyMaterial{}, err
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("marshal public key: %w", err)
	}
	//nolint:staticcheck // the server reads legacy encrypted PEM.
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), hash, x509.PEMCipherAES256)
	if err != nil {
		return keyMaterial{}, fmt.Errorf("encrypt private key: %w", err)
	}

	return keyMaterial{
		publicKey:  EscapePEM(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))),
		privateKey: EscapePEM(string(pem.EncodeToMemory(block))),
		salt:       salt,
		passphrase: string(hash),
	}, nil
}

// bcryptSalt returns the salt of a "$2a$NN$<22 salt><31 hash>" string.
func bcryptSalt(hash string) (string, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 4 || len(parts[3]) != 53 {
		return "", fmt.Errorf("unexpected bcrypt hash format")
	}
	return parts[3][:22], nil
}

// EscapePEM replaces newlines with "_" as the key columns store them.
func EscapePEM(s string) string {
	return strings.ReplaceAll(s, "\n", "_")
}

// UnescapePEM restores the newlines of a stored PEM column.
func UnescapePEM(s string) string {
	return strings.ReplaceAll(s, "_", "\n")
}
