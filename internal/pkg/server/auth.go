package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/pkg/hasher"
)

const issuer = "airzone-integration"

var (
	errMissingToken  = errors.New("missing bearer token")
	errWriteDisabled = errors.New("write api disabled, no API_USERNAME configured")
)

type claimsKey struct{}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken signs an HS256 token for subject.
func IssueToken(secret, subject string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expires := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(secret))
	return signed, expires, err
}

func (s *server) postToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Username == "" {
		writeError(w, http.StatusForbidden, errWriteDisabled)
		return
	}
	req, err := unmarshalPayload[tokenRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Username != s.cfg.Username || !hasher.PasswordCorrect(req.Password, s.cfg.PasswordHash) {
		s.logger.Warn("rejected token request", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token, expires, err := IssueToken(s.cfg.JwtSecret, req.Username, s.cfg.TokenTTL, s.clock())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires})
}

func (s *server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Username == "" {
			writeError(w, http.StatusForbidden, errWriteDisabled)
			return
		}
		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, errMissingToken)
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(s.cfg.JwtSecret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithTimeFunc(s.clock),
		)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}
