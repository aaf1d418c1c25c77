package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	jwt "github.com/golang-jwt/jwt/v5"

	"vledger/core/auth"
	ledgererrors "vledger/core/errors"
)

const (
	// AdminScope grants access to faucet, nonce override and sequencing calls.
	AdminScope = "ledger:admin"

	HeaderCallerSignature = "X-Vledger-Caller-Signature"
	HeaderCallerTimestamp = "X-Vledger-Caller-Timestamp"

	defaultCallerSkew = 60 * time.Second
)

// AuthConfig configures bearer token validation for administrative calls.
// The token subject names the admin identity the call acts as.
type AuthConfig struct {
	HMACSecret string        `toml:"HMACSecret"`
	Issuer     string        `toml:"Issuer"`
	Audience   string        `toml:"Audience"`
	ScopeClaim string        `toml:"ScopeClaim"`
	ClockSkew  time.Duration `toml:"ClockSkew"`
}

func (c AuthConfig) withDefaults() AuthConfig {
	if strings.TrimSpace(c.ScopeClaim) == "" {
		c.ScopeClaim = "scope"
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = 2 * time.Minute
	}
	return c
}

// IssueAdminToken mints an HS256 token carrying AdminScope for subject.
func IssueAdminToken(cfg AuthConfig, subject common.Address, ttl time.Duration, now time.Time) (string, error) {
	cfg = cfg.withDefaults()
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return "", errors.New("rpc: hmac secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub":          subject.Hex(),
		cfg.ScopeClaim: AdminScope,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func unauthorized(msg string) *RPCError {
	return &RPCError{Code: codeUnauthorized, Message: msg, Data: &RPCErrorDetail{Kind: ledgererrors.KindUnauthorized}}
}

// authenticateAdmin validates the bearer token and returns the admin identity
// named by its subject. Whether that identity is actually an admin is decided
// by the ledger.
func (s *Server) authenticateAdmin(r *http.Request) (common.Address, *RPCError) {
	cfg := s.auth
	if strings.TrimSpace(cfg.HMACSecret) == "" {
		return common.Address{}, unauthorized("admin authentication not configured")
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return common.Address{}, unauthorized("missing bearer token")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" {
		return common.Address{}, unauthorized("missing bearer token")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(strings.TrimSpace(cfg.HMACSecret)), nil
	}, jwt.WithLeeway(cfg.ClockSkew), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		s.logger.Warn("admin token rejected", "error", err)
		return common.Address{}, unauthorized("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return common.Address{}, unauthorized("invalid token")
	}
	if err := validateClaims(claims, cfg.Issuer, cfg.Audience); err != nil {
		s.logger.Warn("admin token claims rejected", "error", err)
		return common.Address{}, unauthorized("invalid token")
	}
	if !hasScope(extractScopes(claims, cfg.ScopeClaim), AdminScope) {
		return common.Address{}, unauthorized("insufficient scope")
	}
	subject, _ := claims["sub"].(string)
	if !common.IsHexAddress(subject) {
		return common.Address{}, unauthorized("token subject must be an identity address")
	}
	return common.HexToAddress(subject), nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience == "" {
		return nil
	}
	switch val := claims["aud"].(type) {
	case string:
		if val == audience {
			return nil
		}
	case []interface{}:
		for _, entry := range val {
			if s, ok := entry.(string); ok && s == audience {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}

func extractScopes(claims jwt.MapClaims, claim string) []string {
	switch val := claims[claim].(type) {
	case string:
		return strings.Fields(val)
	case []interface{}:
		scopes := make([]string, 0, len(val))
		for _, entry := range val {
			if s, ok := entry.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	default:
		return nil
	}
}

func hasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}

// SignCall returns the caller headers for method with the exact params bytes
// sent on the wire.
func SignCall(domain auth.Domain, method string, params []byte, timestamp uint64, sign func(common.Hash) ([]byte, error)) (http.Header, error) {
	sig, err := sign(domain.CallHash(method, params, timestamp))
	if err != nil {
		return nil, err
	}
	header := make(http.Header)
	header.Set(HeaderCallerTimestamp, strconv.FormatUint(timestamp, 10))
	header.Set(HeaderCallerSignature, hexutil.Encode(sig))
	return header, nil
}

// authenticateCaller recovers the identity that signed this call. Each call
// signature is accepted once inside the skew window.
func (s *Server) authenticateCaller(r *http.Request, method string, params []byte) (common.Address, error) {
	rawTS := strings.TrimSpace(r.Header.Get(HeaderCallerTimestamp))
	rawSig := strings.TrimSpace(r.Header.Get(HeaderCallerSignature))
	if rawTS == "" || rawSig == "" {
		return common.Address{}, ledgererrors.New(ledgererrors.KindUnauthorized, "caller signature required")
	}
	ts, err := strconv.ParseUint(rawTS, 10, 64)
	if err != nil {
		return common.Address{}, ledgererrors.Wrap(ledgererrors.KindInvalidArgument, "invalid caller timestamp", err)
	}
	now := s.now()
	signedAt := time.Unix(int64(ts), 0)
	if signedAt.Before(now.Add(-s.callerSkew)) || signedAt.After(now.Add(s.callerSkew)) {
		return common.Address{}, ledgererrors.New(ledgererrors.KindExpired, "caller signature outside accepted window")
	}
	sig, err := hexutil.Decode(rawSig)
	if err != nil {
		return common.Address{}, ledgererrors.Wrap(ledgererrors.KindMalformedSignature, "caller signature", err)
	}
	hash := s.ledger.Domain().CallHash(method, params, ts)
	caller, err := auth.RecoverSigner(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	if err := s.trackCallerSignature(hash, signedAt.Add(s.callerSkew), now); err != nil {
		return common.Address{}, err
	}
	return caller, nil
}

func (s *Server) trackCallerSignature(hash common.Hash, expiry, now time.Time) error {
	s.callerMu.Lock()
	defer s.callerMu.Unlock()
	for key, exp := range s.callerSeen {
		if now.After(exp) {
			delete(s.callerSeen, key)
		}
	}
	if _, seen := s.callerSeen[hash]; seen {
		return ledgererrors.New(ledgererrors.KindAlreadyExists, fmt.Sprintf("caller signature %s already used", hash.Hex()))
	}
	s.callerSeen[hash] = expiry
	return nil
}
