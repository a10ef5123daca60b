// Copyright (c) 2024 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package jwt validates the JWTs that may be presented as bearer tokens
// to the control API.
package jwt

import (
	"fmt"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled          = fmt.Errorf("JWT authentication is disabled")
	ErrNoValidPrincipalClaim = fmt.Errorf("JWT token did not contain an acceptable principal claim")
)

// JWTAuthConfig is the set of issuers whose tokens the API accepts.
type JWTAuthConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Tokens  []JWTAuthTokenConfig `yaml:"tokens"`
}

// JWTAuthTokenConfig is one accepted signing key.
type JWTAuthTokenConfig struct {
	Algorithm string `yaml:"algorithm"`
	KeyString string `yaml:"key"`
	KeyFile   string `yaml:"key-file"`
	// claims checked, in order, for the name of the caller; defaults to "sub"
	PrincipalClaims []string `yaml:"principal-claims"`
	Audience        string   `yaml:"audience"`

	key    any
	parser *jwt.Parser
}

func (j *JWTAuthConfig) Postprocess() error {
	if !j.Enabled {
		return nil
	}

	if len(j.Tokens) == 0 {
		return fmt.Errorf("JWT authentication enabled, but no valid tokens defined")
	}

	for i := range j.Tokens {
		if err := j.Tokens[i].Postprocess(); err != nil {
			return err
		}
	}

	return nil
}

func (j *JWTAuthTokenConfig) Postprocess() error {
	keyBytes, err := j.keyBytes()
	if err != nil {
		return err
	}

	j.Algorithm = strings.ToLower(j.Algorithm)

	var methods []string
	switch j.Algorithm {
	case "hmac":
		j.key = keyBytes
		methods = []string{"HS256", "HS384", "HS512"}
	case "rsa":
		rsaKey, err := jwt.ParseRSAPublicKeyFromPEM(keyBytes)
		if err != nil {
			return err
		}
		j.key = rsaKey
		methods = []string{"RS256", "RS384", "RS512"}
	case "eddsa":
		eddsaKey, err := jwt.ParseEdPublicKeyFromPEM(keyBytes)
		if err != nil {
			return err
		}
		j.key = eddsaKey
		methods = []string{"EdDSA"}
	default:
		return fmt.Errorf("invalid jwt algorithm: %s", j.Algorithm)
	}

	options := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if j.Audience != "" {
		options = append(options, jwt.WithAudience(j.Audience))
	}
	j.parser = jwt.NewParser(options...)

	if len(j.PrincipalClaims) == 0 {
		j.PrincipalClaims = []string{"sub"}
	}
	return nil
}

// Validate checks t against every configured key and returns the name of
// the caller from the first key that accepts it.
func (j *JWTAuthConfig) Validate(t string) (principal string, err error) {
	if !j.Enabled || len(j.Tokens) == 0 {
		return "", ErrAuthDisabled
	}

	for i := range j.Tokens {
		principal, err = j.Tokens[i].Validate(t)
		if err == nil {
			return
		}
	}
	return
}

func (j *JWTAuthTokenConfig) keyBytes() (result []byte, err error) {
	if j.KeyFile != "" {
		return os.ReadFile(j.KeyFile)
	}
	if j.KeyString != "" {
		return []byte(j.KeyString), nil
	}
	return nil, fmt.Errorf("JWT auth enabled, but no JWT key specified")
}

// implements jwt.Keyfunc
func (j *JWTAuthTokenConfig) keyFunc(_ *jwt.Token) (interface{}, error) {
	return j.key, nil
}

func (j *JWTAuthTokenConfig) Validate(t string) (principal string, err error) {
	token, err := j.parser.Parse(t, j.keyFunc)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		// impossible with Parse (as opposed to ParseWithClaims)
		return "", fmt.Errorf("unexpected type from parsed token claims: %T", claims)
	}

	for _, c := range j.PrincipalClaims {
		if v, ok := claims[c]; ok {
			if vstr, ok := v.(string); ok && vstr != "" {
				return vstr, nil
			}
		}
	}

	return "", ErrNoValidPrincipalClaim
}
