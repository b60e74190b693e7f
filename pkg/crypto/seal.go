package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/eaglesoak/portal/core"
)

var (
	ErrPassphraseRequired = errors.New("sealing passphrase is required")
	ErrSealBroken         = errors.New("sealed token cannot be opened")
)

const (
	saltLength = 16
)

// KDFParams tune the argon2id key derivation
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
	}
}

// SealedTokenStore encrypts the token before it reaches the wrapped store.
// Each Save draws a fresh salt and nonce; the stored value is
// base64(salt | nonce | ciphertext).
type SealedTokenStore struct {
	inner      core.TokenStore
	passphrase []byte
	params     KDFParams
}

var _ core.TokenStore = (*SealedTokenStore)(nil)

func NewSealedTokenStore(inner core.TokenStore, passphrase string, params ...KDFParams) (*SealedTokenStore, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if len(params) > 1 {
		return nil, errors.New("too many arguments. expected only 1")
	}
	p := DefaultKDFParams()
	if len(params) == 1 {
		p = params[0]
	}
	return &SealedTokenStore{
		inner:      inner,
		passphrase: []byte(passphrase),
		params:     p,
	}, nil
}

func (s *SealedTokenStore) key(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, s.params.Time, s.params.Memory, s.params.Threads, chacha20poly1305.KeySize)
}

func (s *SealedTokenStore) Seal(token string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := append(salt, aead.Seal(nonce, nonce, []byte(token), salt)...)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *SealedTokenStore) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealBroken, err)
	}
	if len(raw) < saltLength+chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: too short", ErrSealBroken)
	}
	salt, rest := raw[:saltLength], raw[saltLength:]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return "", err
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealBroken, err)
	}
	return string(plain), nil
}

func (s *SealedTokenStore) Load(ctx context.Context) (string, error) {
	sealed, err := s.inner.Load(ctx)
	if err != nil {
		return "", err
	}
	return s.Open(sealed)
}

func (s *SealedTokenStore) Save(ctx context.Context, token string) error {
	sealed, err := s.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	return s.inner.Save(ctx, sealed)
}

func (s *SealedTokenStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}
