package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// jwkFromRSA wraps an RSA private key as a JWK with the given key id so
// signed tokens carry a kid header.
func jwkFromRSA(key *rsa.PrivateKey, kid string) (jwk.Key, error) {
	jwkKey, err := jwk.FromRaw(key)
	if err != nil {
		return nil, err
	}
	if err := jwkKey.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	return jwkKey, nil
}

// jwkFromECDSA wraps an ECDSA private key as a JWK with the given key id.
func jwkFromECDSA(key *ecdsa.PrivateKey, kid string) (jwk.Key, error) {
	jwkKey, err := jwk.FromRaw(key)
	if err != nil {
		return nil, err
	}
	if err := jwkKey.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	return jwkKey, nil
}
