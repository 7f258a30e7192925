package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
)

// SignChallenge produces the Kraken Futures authentication signature for the
// given challenge string: the challenge is hashed with SHA-256, the result is
// HMAC-SHA512 signed with the base64-decoded API secret and the digest is
// returned base64 encoded. The same scheme signs REST request payloads.
func SignChallenge(challenge, apiSecret string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}

	hash := sha256.Sum256([]byte(challenge))

	mac := hmac.New(sha512.New, secret)
	mac.Write(hash[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
