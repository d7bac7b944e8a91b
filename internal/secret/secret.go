// Package secret encrypts the one sensitive value the appliance keeps on disk:
// the router password.
//
// The key is derived from a stable machine identifier, so nothing has to be
// remembered by the user and no key file sits next to the ciphertext. The
// flip side is that changing the identifier (reinstalling the OS, cloning the
// SD card to other hardware) makes existing ciphertexts undecryptable; those
// values are then handed back unchanged by Decrypt and the user has to enter
// the password again.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Prefix marks a value produced by Encrypt. The version segment names the key
// derivation so a future scheme can coexist with old values.
const (
	prefixTag  = "pmenc"
	KDFVersion = "v1"
	Prefix     = prefixTag + ":" + KDFVersion + ":"
)

// hkdfInfo binds derived keys to this use.
const hkdfInfo = "pimgr router password v1"

// defaultIdentifier is the last resort when neither a machine-id nor a
// hostname is available.
const defaultIdentifier = "pihole-default"

// machineIDPaths are tried in order.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// IDSource yields the stable identifier the key is derived from.
type IDSource func() string

// MachineID reads the systemd machine id, falling back to the hostname and
// then to a fixed string.
func MachineID() string {
	for _, p := range machineIDPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return strings.TrimSpace(host)
	}
	return defaultIdentifier
}

// StaticID returns an IDSource that always yields id. Used by tests and by
// callers that pin the identifier explicitly.
func StaticID(id string) IDSource {
	return func() string { return id }
}

// Cipher encrypts and decrypts short strings with a key derived from an
// IDSource. It is safe for concurrent use once constructed.
type Cipher struct {
	key []byte
}

// NewCipher derives the key from source. A nil source means MachineID.
func NewCipher(source IDSource) *Cipher {
	if source == nil {
		source = MachineID
	}
	return &Cipher{key: DeriveKey(source())}
}

// DeriveKey hashes the identifier with SHA-256 and expands the digest with
// HKDF-SHA256 into a chacha20poly1305 key. The result is deterministic for a
// given identifier.
func DeriveKey(identifier string) []byte {
	digest := sha256.Sum256([]byte(identifier))
	r := hkdf.New(sha256.New, digest[:], nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails when asked for more than 255*hash-size bytes.
		panic(fmt.Sprintf("secret: hkdf expand: %v", err))
	}
	return key
}

// Encrypt seals plaintext and returns the prefixed, base64url encoded value.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(KDFVersion))
	return Prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Anything that is not a valid
// ciphertext for this key (legacy plaintext, a value from another machine,
// garbage) is returned unchanged with ok == false. Decrypt never fails.
func (c *Cipher) Decrypt(value string) (plaintext string, ok bool) {
	if !IsEncrypted(value) {
		return value, false
	}

	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return value, false
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return value, false
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return value, false
	}

	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(KDFVersion))
	if err != nil {
		return value, false
	}
	return string(plain), true
}

// IsEncrypted reports whether value carries the ciphertext prefix. It says
// nothing about whether it decrypts with the local key.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
