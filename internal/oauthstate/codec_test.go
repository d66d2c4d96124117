package oauthstate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tyemirov/creatoros/internal/apierrors"
	"github.com/tyemirov/creatoros/internal/credentials"
)

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func newTestCodec(t *testing.T, clock Clock) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{Secret: []byte("process-secret"), Issuer: "creatoros", Clock: clock})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

func TestNewCodecRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec(Config{Issuer: "creatoros"}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewCodec(Config{Secret: []byte("secret")}); err == nil {
		t.Fatalf("expected error for empty issuer")
	}
}

func TestRoundTripCarriesVerifier(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	codec := newTestCodec(t, clock)

	token, err := codec.Encode(Payload{UserID: "u1", Platform: credentials.PlatformX, CodeVerifier: "verifier-123"}, 10*time.Minute)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if strings.Contains(token, "verifier-123") {
		t.Fatalf("verifier must not be readable from the token")
	}
	payload, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.UserID != "u1" || payload.Platform != credentials.PlatformX || payload.CodeVerifier != "verifier-123" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRoundTripWithoutVerifier(t *testing.T) {
	codec := newTestCodec(t, nil)

	token, err := codec.Encode(Payload{UserID: "u1", Platform: credentials.PlatformGoogle}, time.Minute)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	payload, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.CodeVerifier != "" {
		t.Fatalf("expected empty verifier, got %q", payload.CodeVerifier)
	}
}

func TestEncodeRejectsIncompletePayload(t *testing.T) {
	codec := newTestCodec(t, nil)
	cases := []struct {
		name    string
		payload Payload
		ttl     time.Duration
	}{
		{name: "missing user", payload: Payload{Platform: credentials.PlatformX}, ttl: time.Minute},
		{name: "missing platform", payload: Payload{UserID: "u1"}, ttl: time.Minute},
		{name: "zero ttl", payload: Payload{UserID: "u1", Platform: credentials.PlatformX}, ttl: 0},
	}
	for _, testCase := range cases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := codec.Encode(testCase.payload, testCase.ttl); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestDecodeExpiredAfterTTL(t *testing.T) {
	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	codec := newTestCodec(t, clock)

	token, err := codec.Encode(Payload{UserID: "u1", Platform: credentials.PlatformGoogle}, 10*time.Minute)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	clock.current = clock.current.Add(10*time.Minute + time.Second)
	_, err = codec.Decode(token)
	if !errors.Is(err, ErrExpiredState) {
		t.Fatalf("expected ErrExpiredState, got %v", err)
	}
	if !errors.Is(err, apierrors.ErrInvalidState) {
		t.Fatalf("expired state must classify as invalid state, got %v", err)
	}
}

func TestDecodeMissingState(t *testing.T) {
	codec := newTestCodec(t, nil)
	_, err := codec.Decode("  ")
	if !errors.Is(err, ErrMissingState) {
		t.Fatalf("expected ErrMissingState, got %v", err)
	}
	if code := apierrors.Code(err); code != "state_missing" {
		t.Fatalf("missing state must report state_missing, got %q", code)
	}
	if !errors.Is(err, apierrors.ErrInvalidState) {
		t.Fatalf("missing state must still classify under invalid state, got %v", err)
	}
	_, err = codec.Decode("not-a-token")
	if code := apierrors.Code(err); code != "state_invalid" {
		t.Fatalf("malformed state must report state_invalid, got %q", code)
	}
}

func TestDecodeRejectsEveryTamperedByte(t *testing.T) {
	codec := newTestCodec(t, nil)
	token, err := codec.Encode(Payload{UserID: "u1", Platform: credentials.PlatformX, CodeVerifier: "v"}, time.Minute)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for index := 0; index < len(token); index++ {
		replacement := byte('A')
		if token[index] == 'A' {
			replacement = 'B'
		}
		tampered := token[:index] + string(replacement) + token[index+1:]
		if _, decodeErr := codec.Decode(tampered); !errors.Is(decodeErr, ErrInvalidState) {
			t.Fatalf("byte %d: expected ErrInvalidState, got %v", index, decodeErr)
		}
	}
}

func TestDecodeRejectsForeignTokens(t *testing.T) {
	now := time.Now().UTC()
	codec := newTestCodec(t, nil)

	bearerLike := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": "u1",
		"plt": "google",
		"iss": "creatoros",
		"aud": "session",
		"exp": now.Add(time.Hour).Unix(),
	})
	signedWithSecret, err := bearerLike.SignedString([]byte("process-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, decodeErr := codec.Decode(signedWithSecret); !errors.Is(decodeErr, ErrInvalidState) {
		t.Fatalf("expected raw-secret token to be rejected, got %v", decodeErr)
	}

	wrongAudience := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": "u1",
		"plt": "google",
		"iss": "creatoros",
		"aud": "session",
		"exp": now.Add(time.Hour).Unix(),
	})
	signedWithDerived, err := wrongAudience.SignedString(codec.signingKey)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, decodeErr := codec.Decode(signedWithDerived); !errors.Is(decodeErr, ErrInvalidState) {
		t.Fatalf("expected wrong audience to be rejected, got %v", decodeErr)
	}

	otherCodec, err := NewCodec(Config{Secret: []byte("other-secret"), Issuer: "creatoros"})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	foreign, err := otherCodec.Encode(Payload{UserID: "u1", Platform: credentials.PlatformGoogle}, time.Minute)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, decodeErr := codec.Decode(foreign); !errors.Is(decodeErr, ErrInvalidState) {
		t.Fatalf("expected foreign secret to be rejected, got %v", decodeErr)
	}
}

func TestDecodeRejectsMissingClaims(t *testing.T) {
	codec := newTestCodec(t, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "creatoros",
		"aud": Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(codec.signingKey)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, decodeErr := codec.Decode(signed); !errors.Is(decodeErr, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", decodeErr)
	}
}
