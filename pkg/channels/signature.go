package channels

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrSignatureInvalid matches every failed webhook signature check.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// SignatureError reports a webhook that failed signature validation.
type SignatureError struct {
	Channel string
	Reason  string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Channel, ErrSignatureInvalid.Error(), e.Reason)
}

func (e *SignatureError) Is(target error) bool {
	return target == ErrSignatureInvalid
}

// ComputeHMACSHA256Hex returns the lowercase hex HMAC-SHA256 of body.
func ComputeHMACSHA256Hex(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMACSHA256 checks a Meta-style X-Hub-Signature-256 value against body.
// A leading "sha256=" on signature is ignored.
func VerifyHMACSHA256(body []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := ComputeHMACSHA256Hex(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// ComputeTwilioSignature implements Twilio's request signing: the full request
// URL followed by every form parameter as key+value, keys in lexicographic
// order, HMAC-SHA1 with the auth token, base64 encoded.
func ComputeTwilioSignature(fullURL string, params url.Values, authToken string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyTwilioSignature compares an X-Twilio-Signature header in constant time.
func VerifyTwilioSignature(fullURL string, params url.Values, signature, authToken string) bool {
	expected := ComputeTwilioSignature(fullURL, params, authToken)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}
