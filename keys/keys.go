// Package keys generates PEM encoded key pairs for the SSH transport of the
// SFTP storage backend.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/crypto/ssh"
)

// GeneratesRSAKeys generates a new RSA key pair and returns the private and public keys in PEM format.
func GeneratesRSAKeys(bitSize int) (privateKeyFile, publicKeyFile []byte, err error) {

	// Only allow certain key sizes.
	validBitSizes := map[int]bool{2048: true, 3072: true, 4096: true}
	if !validBitSizes[bitSize] {
		return nil, nil, fmt.Errorf("invalid RSA key size %d", bitSize)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating RSA key: %w", err)
	}

	privateKeyPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	privateKeyFile = pem.EncodeToMemory(privateKeyPEM)

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling RSA public key: %w", err)
	}

	publicKeyPEM := &pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: publicKeyDER,
	}
	publicKeyFile = pem.EncodeToMemory(publicKeyPEM)

	return privateKeyFile, publicKeyFile, nil
}

// GeneratesED25519Keys generates a new EdDSA key pair and returns the private and public keys in PEM format.
func GeneratesED25519Keys() (privateKeyFile, publicKeyFile []byte, err error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating ed25519 key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling ed25519 private key: %w", err)
	}
	privateKeyFile = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling ed25519 public key: %w", err)
	}
	publicKeyFile = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes})
	return privateKeyFile, publicKeyFile, nil
}

// Signer parses a PEM encoded private key into an ssh.Signer usable as a
// host key or as a client identity.
func Signer(privateKeyFile []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return signer, nil
}

// Key types accepted by LoadOrGenerate.
const (
	TypeED25519 = "ed25519"
	TypeRSA     = "rsa"
)

// LoadOrGenerate reads the PEM private key at name. When the file does not
// exist a new key of keyType is generated and written there with mode 0600,
// created reports that case.
func LoadOrGenerate(name, keyType string) (privateKeyFile []byte, created bool, err error) {
	privateKeyFile, err = os.ReadFile(name)
	if err == nil {
		return privateKeyFile, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("error reading private key file: %w", err)
	}

	switch keyType {
	case TypeRSA:
		privateKeyFile, _, err = GeneratesRSAKeys(4096)
	case TypeED25519, "":
		privateKeyFile, _, err = GeneratesED25519Keys()
	default:
		return nil, false, fmt.Errorf("unknown key type %q", keyType)
	}
	if err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(name, privateKeyFile, 0o600); err != nil {
		return nil, false, fmt.Errorf("error writing private key file: %w", err)
	}
	return privateKeyFile, true, nil
}
