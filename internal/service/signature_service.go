package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	return hmac.Equal([]byte(s.Sign(secretKey, payload)), []byte(signature))
}

// SignedPayload is the string a processor signature covers: "<unix>.<body>".
func SignedPayload(timestamp int64, body []byte) string {
	return strconv.FormatInt(timestamp, 10) + "." + string(body)
}

// FormatSignatureHeader renders the processor signature header.
func FormatSignatureHeader(timestamp int64, signature string) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + signature
}

// ParseSignatureHeader splits "t=<unix>,v1=<hex>" into its parts.
func ParseSignatureHeader(header string) (int64, string, error) {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", errors.New("invalid signature timestamp")
			}
			ts = n
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", errors.New("malformed signature header")
	}
	return ts, sig, nil
}

// WithinTolerance reports whether a signature timestamp is close enough to now.
func WithinTolerance(timestamp int64, now time.Time, tolerance time.Duration) bool {
	d := now.Sub(time.Unix(timestamp, 0))
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
