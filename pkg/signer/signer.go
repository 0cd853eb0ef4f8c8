// Package signer mints and verifies short-lived tokens for loopback trigger
// calls. A token binds a GET request URL to the second it was issued, using
// an HMAC over a canonical form of the URL. Any process holding the shared
// secret can verify a token without talking to the process that minted it.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is how long a token stays valid unless overridden.
const DefaultTimeout = 24 * time.Hour

// maxClockSkew bounds how far in the future an issue time may lie.
const maxClockSkew = time.Second

// ErrMalformedSignature is returned when a token cannot be parsed at all.
var ErrMalformedSignature = errors.New("malformed signature")

// Signer holds the shared secret and the replay window.
type Signer struct {
	key     []byte
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithTimeout sets how long a token is accepted after it was issued.
func WithTimeout(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Signer for the given secret key.
func New(key []byte, opts ...Option) *Signer {
	s := &Signer{
		key:     append([]byte(nil), key...),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the configured replay window.
func (s *Signer) Timeout() time.Duration {
	return s.timeout
}

// Canonicalize reduces a URL to the string that gets signed: the escaped
// path, followed by "?" and the query pairs sorted by decoded key then value
// when the URL has a query component. Keys and values are re-escaped so an
// encoded "&", "=" or "?" can never pass for a separator. Scheme, host and
// fragment do not take part.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}

	path := u.EscapedPath()
	if u.RawQuery == "" && !u.ForceQuery {
		return path, nil
	}

	pairs, err := queryPairs(u.RawQuery)
	if err != nil {
		return "", err
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String(), nil
}

// queryPairs splits a raw query into decoded key/value pairs, keeping
// duplicates. A key without "=" gets an empty value.
func queryPairs(rawQuery string) ([][2]string, error) {
	var pairs [][2]string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("invalid query key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("invalid query value %q: %w", v, err)
		}
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs, nil
}

// GenerateSignatureGet mints a token for a GET of rawURL, formatted as
// "<unix seconds>.<hex hmac>".
func (s *Signer) GenerateSignatureGet(rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	issued := s.now().Unix()
	return strconv.FormatInt(issued, 10) + "." + hex.EncodeToString(s.digest(canonical, issued)), nil
}

// VerifySignatureGet checks that token was minted for rawURL with the same
// key and is still inside the replay window. Issue times more than a second
// ahead of the clock are rejected. A wrong digest or an expired
// token yields false with a nil error; only input that cannot be parsed
// yields an error.
func (s *Signer) VerifySignatureGet(rawURL, token string) (bool, error) {
	issued, got, err := parseToken(token)
	if err != nil {
		return false, err
	}

	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return false, err
	}

	if !hmac.Equal(got, s.digest(canonical, issued)) {
		return false, nil
	}

	age := s.now().Sub(time.Unix(issued, 0))
	if age > s.timeout || age < -maxClockSkew {
		return false, nil
	}
	return true, nil
}

func (s *Signer) digest(canonical string, issued int64) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	mac.Write([]byte(strconv.FormatInt(issued, 10)))
	return mac.Sum(nil)
}

func parseToken(token string) (int64, []byte, error) {
	ts, digest, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || ts == "" || digest == "" {
		return 0, nil, ErrMalformedSignature
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedSignature)
	}
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != sha256.Size {
		return 0, nil, fmt.Errorf("%w: bad digest", ErrMalformedSignature)
	}
	return issued, raw, nil
}
