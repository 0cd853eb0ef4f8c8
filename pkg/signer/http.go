package signer

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// AuthScheme prefixes tokens in the Authorization header.
const AuthScheme = "Signature"

// SetAuthorization attaches a token to an outgoing request.
func SetAuthorization(req *http.Request, token string) {
	req.Header.Set("Authorization", AuthScheme+" "+token)
}

// TokenFromRequest extracts the token from the Authorization header.
// It returns "" when the header is missing or uses another scheme.
func TokenFromRequest(req *http.Request) string {
	scheme, token, ok := strings.Cut(req.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, AuthScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// SignRequest mints a token over the request URL and attaches it.
func (s *Signer) SignRequest(req *http.Request) error {
	token, err := s.GenerateSignatureGet(req.URL.String())
	if err != nil {
		return err
	}
	SetAuthorization(req, token)
	return nil
}

// Middleware rejects requests that do not carry a valid token for their
// request URI. Only GET requests can be signed.
func (s *Signer) Middleware(logger *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := TokenFromRequest(r)
		if token == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}

		ok, err := s.VerifySignatureGet(r.URL.RequestURI(), token)
		if err != nil {
			logger.WithError(err).WithField("uri", r.URL.RequestURI()).Debug("Rejected malformed signature")
			http.Error(w, "malformed signature", http.StatusUnauthorized)
			return
		}
		if !ok {
			logger.WithField("uri", r.URL.RequestURI()).Debug("Rejected invalid or expired signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
