// Package oauthstate encodes the signed state artifact that carries a user's
// identity (and PKCE verifier) through the provider redirect.
package oauthstate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
)

// Audience is carried by every state artifact. Bearer tokens use a different
// audience and a different key.
const Audience = "oauth_state"

const (
	signingKeyLabel = "creatoros/oauth-state/signing"
	sealingKeyLabel = "creatoros/oauth-state/sealing"
	derivedKeyBytes = 32
)

var (
	// ErrMissingState indicates the callback carried no state value.
	ErrMissingState = fmt.Errorf("oauth_state.missing: %w", apierrors.ErrMissingState)
	// ErrInvalidState covers malformed, forged and mismatched artifacts.
	ErrInvalidState = fmt.Errorf("oauth_state.invalid: %w", apierrors.ErrInvalidState)
	// ErrExpiredState indicates an authentic artifact past its expiry.
	ErrExpiredState = fmt.Errorf("oauth_state.expired: %w", apierrors.ErrInvalidState)
	// ErrInvalidPayload rejects artifacts that could never be decoded back.
	ErrInvalidPayload = fmt.Errorf("oauth_state.invalid_payload: %w", apierrors.ErrInvalidInput)

	errMissingSecret = errors.New("oauth_state.missing_secret")
	errMissingIssuer = errors.New("oauth_state.missing_issuer")
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures a Codec.
type Config struct {
	Secret []byte
	Issuer string
	Clock  Clock
}

// Payload is the information recovered from a verified state artifact.
type Payload struct {
	UserID       string
	Platform     credentials.Platform
	CodeVerifier string
}

type stateClaims struct {
	UserID         string `json:"uid"`
	Platform       string `json:"plt"`
	SealedVerifier string `json:"cv,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies state artifacts.
type Codec struct {
	signingKey []byte
	sealer     cipher.AEAD
	issuer     string
	clock      Clock
}

// NewCodec derives the signing and sealing keys from the process secret.
func NewCodec(configuration Config) (*Codec, error) {
	if len(configuration.Secret) == 0 {
		return nil, fmt.Errorf("oauth_state.new: %w", errMissingSecret)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("oauth_state.new: %w", errMissingIssuer)
	}
	signingKey, err := deriveKey(configuration.Secret, signingKeyLabel)
	if err != nil {
		return nil, err
	}
	sealingKey, err := deriveKey(configuration.Secret, sealingKeyLabel)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("oauth_state.new.cipher: %w", err)
	}
	sealer, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("oauth_state.new.gcm: %w", err)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Codec{
		signingKey: signingKey,
		sealer:     sealer,
		issuer:     configuration.Issuer,
		clock:      clock,
	}, nil
}

func deriveKey(secret []byte, label string) ([]byte, error) {
	key := make([]byte, derivedKeyBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, fmt.Errorf("oauth_state.derive_key: %w", err)
	}
	return key, nil
}

// Encode signs payload into a URL-safe token valid for ttl.
func (codec *Codec) Encode(payload Payload, ttl time.Duration) (string, error) {
	if strings.TrimSpace(payload.UserID) == "" || strings.TrimSpace(string(payload.Platform)) == "" || ttl <= 0 {
		return "", fmt.Errorf("oauth_state.encode: %w", ErrInvalidPayload)
	}
	issuedAt := codec.clock.Now()
	claims := stateClaims{
		UserID:   payload.UserID,
		Platform: string(payload.Platform),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if payload.CodeVerifier != "" {
		sealed, err := codec.seal(payload.CodeVerifier, claims.ID)
		if err != nil {
			return "", err
		}
		claims.SealedVerifier = sealed
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(codec.signingKey)
	if err != nil {
		return "", fmt.Errorf("oauth_state.encode.sign: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature first, then expiry, audience and issuer.
func (codec *Codec) Decode(token string) (Payload, error) {
	if strings.TrimSpace(token) == "" {
		return Payload{}, fmt.Errorf("oauth_state.decode: %w", ErrMissingState)
	}
	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithIssuer(codec.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(codec.clock.Now),
	)
	if err != nil {
		if isOnlyExpired(err) {
			return Payload{}, fmt.Errorf("oauth_state.decode: %w", ErrExpiredState)
		}
		return Payload{}, fmt.Errorf("oauth_state.decode: %w", ErrInvalidState)
	}
	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Platform) == "" {
		return Payload{}, fmt.Errorf("oauth_state.decode.claims: %w", ErrInvalidState)
	}
	payload := Payload{
		UserID:   claims.UserID,
		Platform: credentials.Platform(claims.Platform),
	}
	if claims.SealedVerifier != "" {
		verifier, openErr := codec.open(claims.SealedVerifier, claims.ID)
		if openErr != nil {
			return Payload{}, openErr
		}
		payload.CodeVerifier = verifier
	}
	return payload, nil
}

// isOnlyExpired reports whether expiry is the sole validation failure. jwt
// checks the signature before any claim, so a forged token never reaches here.
func isOnlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{jwt.ErrTokenInvalidAudience, jwt.ErrTokenInvalidIssuer, jwt.ErrTokenSignatureInvalid, jwt.ErrTokenMalformed, jwt.ErrTokenNotValidYet, jwt.ErrTokenUsedBeforeIssued} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func (codec *Codec) seal(verifier string, tokenID string) (string, error) {
	nonce := make([]byte, codec.sealer.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("oauth_state.seal.nonce: %w", err)
	}
	sealed := codec.sealer.Seal(nonce, nonce, []byte(verifier), []byte(tokenID))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (codec *Codec) open(sealed string, tokenID string) (string, error) {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(sealed)
	if err != nil || len(raw) < codec.sealer.NonceSize() {
		return "", fmt.Errorf("oauth_state.open: %w", ErrInvalidState)
	}
	nonce, ciphertext := raw[:codec.sealer.NonceSize()], raw[codec.sealer.NonceSize():]
	plaintext, err := codec.sealer.Open(nil, nonce, ciphertext, []byte(tokenID))
	if err != nil {
		return "", fmt.Errorf("oauth_state.open: %w", ErrInvalidState)
	}
	return string(plaintext), nil
}
