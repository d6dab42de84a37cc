// Package token mints and verifies device bearer tokens.
//
// A token is the base64url encoding of a CBOR payload followed by an
// HMAC-SHA256 tag over that payload. Tokens are self-contained: there
// is no server-side record and expiry is the only way a token stops
// working.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	"github.com/atinyakov/PartyBooth/internal/clock"
)

// tagSize is the length of the HMAC-SHA256 tag.
const tagSize = sha256.Size

// hkdfInfo binds derived keys to this token format.
const hkdfInfo = "partybooth device token v1"

var (
	// ErrMalformed covers undecodable tokens and tokens whose tag does
	// not verify.
	ErrMalformed = errors.New("token: malformed")
	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token: expired")
)

// Claims is the token payload. ExpiresAtMillis is always
// IssuedAtMillis plus the issuer TTL.
type Claims struct {
	DeviceID        string `cbor:"1,keyasint"`
	IssuedAtMillis  int64  `cbor:"2,keyasint"`
	ExpiresAtMillis int64  `cbor:"3,keyasint"`
}

// ExpiresAt returns the expiry as a time.Time.
func (c Claims) ExpiresAt() time.Time {
	return time.UnixMilli(c.ExpiresAtMillis)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("token: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("token: CBOR decoder initialization failed: " + err.Error())
	}
}

// Issuer mints and verifies tokens with one key and TTL.
type Issuer struct {
	key   []byte
	ttl   time.Duration
	clock clock.Clock
}

// NewIssuer derives the MAC key from secret with HKDF-SHA256.
func NewIssuer(secret []byte, ttl time.Duration, c clock.Clock) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty secret")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: non-positive ttl %s", ttl)
	}
	if c == nil {
		c = clock.Real()
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("token: derive key: %w", err)
	}
	return &Issuer{key: key, ttl: ttl, clock: c}, nil
}

// TTL returns the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint returns a token for deviceID issued now.
func (i *Issuer) Mint(deviceID string) (string, Claims, error) {
	now := i.clock.Now()
	claims := Claims{
		DeviceID:        deviceID,
		IssuedAtMillis:  now.UnixMilli(),
		ExpiresAtMillis: now.Add(i.ttl).UnixMilli(),
	}

	payload, err := encMode.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: encode payload: %w", err)
	}

	raw := make([]byte, 0, len(payload)+tagSize)
	raw = append(raw, payload...)
	raw = append(raw, i.tag(payload)...)
	return base64.RawURLEncoding.EncodeToString(raw), claims, nil
}

// Verify checks the tag, decodes the payload and checks expiry.
// A deactivated device's token stays valid until it expires.
func (i *Issuer) Verify(tok string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) <= tagSize {
		return Claims{}, fmt.Errorf("%w: too short", ErrMalformed)
	}

	split := len(raw) - tagSize
	payload, tag := raw[:split], raw[split:]
	if !hmac.Equal(tag, i.tag(payload)) {
		return Claims{}, fmt.Errorf("%w: bad tag", ErrMalformed)
	}

	var claims Claims
	if err := decMode.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.DeviceID == "" || claims.ExpiresAtMillis < claims.IssuedAtMillis {
		return Claims{}, fmt.Errorf("%w: bad claims", ErrMalformed)
	}

	if i.clock.Now().UnixMilli() > claims.ExpiresAtMillis {
		return claims, ErrExpired
	}
	return claims, nil
}

func (i *Issuer) tag(payload []byte) []byte {
	mac := hmac.New(sha256.New, i.key)
	mac.Write(payload)
	return mac.Sum(nil)
}
