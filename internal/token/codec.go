// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package token

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretBytes is the minimum decoded length of the signing secret.
const MinSecretBytes = 32

// Sentinel failures. Match with errors.Is; every error returned by Codec and
// Verifier also carries the matching TOKEN_* code.
var (
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
	ErrRevoked   = errors.New("token revoked")
)

// Error codes.
const (
	CodeMalformed   = "TOKEN_MALFORMED"
	CodeExpired     = "TOKEN_EXPIRED"
	CodeRevoked     = "TOKEN_REVOKED"
	CodeIssueFailed = "TOKEN_ISSUE_FAILED"
	CodeCheckFailed = "TOKEN_CHECK_FAILED"
	CodeInvalidKey  = "TOKEN_INVALID_KEY"
)

// Claims are the validated contents of a bearer token.
type Claims struct {
	Subject   string
	ID        string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and validates HS256 bearer tokens.
type Codec struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// NewCodec creates a Codec signing with key.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) < MinSecretBytes {
		return nil, oops.Code(CodeInvalidKey).
			With("length", len(key)).
			Errorf("signing key must be at least %d bytes", MinSecretBytes)
	}
	c := &Codec{key: append([]byte(nil), key...), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewCodecFromSecret decodes a base64 secret (standard or URL alphabet) and
// creates a Codec.
func NewCodecFromSecret(secret string, opts ...Option) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.RawURLEncoding.DecodeString(secret)
	}
	if err != nil {
		return nil, oops.Code(CodeInvalidKey).Wrapf(err, "signing secret is not valid base64")
	}
	return NewCodec(key, opts...)
}

// Issue signs a token for subject that expires ttl after issuedAt.
func (c *Codec) Issue(subject string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", oops.Code(CodeIssueFailed).Errorf("subject cannot be empty")
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", oops.Code(CodeIssueFailed).With("subject", subject).Wrap(err)
	}
	return signed, nil
}

// Validate verifies the signature of raw and then its expiry. A token that
// cannot be parsed or whose signature does not verify is ErrMalformed; a
// correctly signed token at or past its expiry is ErrExpired.
func (c *Codec) Validate(raw string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, malformed(err)
	}
	if rc.Subject == "" {
		return Claims{}, malformed(errors.New("missing subject"))
	}

	validator := jwt.NewValidator(jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err := validator.Validate(rc); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, oops.Code(CodeExpired).
				With("subject", rc.Subject).
				With("expires_at", rc.ExpiresAt.Time).
				Wrap(ErrExpired)
		}
		return Claims{}, malformed(err)
	}
	return toClaims(rc), nil
}

// ExpiryUnverified reads the exp claim of raw without checking its signature.
// Used to size revocation entries; never trust the result for authorization.
func ExpiryUnverified(raw string) (time.Time, bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &rc); err != nil {
		return time.Time{}, false
	}
	if rc.ExpiresAt == nil {
		return time.Time{}, false
	}
	return rc.ExpiresAt.Time, true
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) {
	return c.key, nil
}

func malformed(cause error) error {
	return oops.Code(CodeMalformed).With("reason", cause.Error()).Wrap(ErrMalformed)
}

func toClaims(rc jwt.RegisteredClaims) Claims {
	c := Claims{Subject: rc.Subject, ID: rc.ID, Issuer: rc.Issuer}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c
}
