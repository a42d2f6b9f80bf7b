// Package auth provides bearer-token verification for the API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// Verifier validates bearer tokens. Modes: "none" (open, the default for
// local runs), "static" (shared token compare), "hmac" (HS256 JWT).
type Verifier struct {
	Mode        string
	StaticToken string
	HMACSecret  []byte
	RoleClaim   string
}

type Principal struct {
	Subject string
	Role    string
}

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "none"
	}
	return &Verifier{
		Mode:        mode,
		StaticToken: os.Getenv("AUTH_TOKEN"),
		HMACSecret:  []byte(os.Getenv("AUTH_HMAC_SECRET")),
		RoleClaim:   envOr("AUTH_ROLE_CLAIM", "role"),
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "none":
		return Principal{Subject: "anonymous", Role: "operator"}, nil
	case "static":
		if token != "" && token == v.StaticToken {
			return Principal{Subject: "static", Role: "operator"}, nil
		}
		return Principal{}, errors.New("invalid token")
	case "hmac":
		return v.verifyHS256(token)
	}
	return Principal{}, errors.New("unknown auth mode: " + v.Mode)
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("invalid JWT")
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, err
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("signature mismatch")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, err
	}
	p := Principal{Subject: "unknown"}
	if s, ok := claims["sub"].(string); ok {
		p.Subject = s
	}
	if r, ok := claims[v.RoleClaim].(string); ok {
		p.Role = r
	}
	return p, nil
}

func b64urlDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
