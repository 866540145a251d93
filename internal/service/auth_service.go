package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/sha3"

	"guardian-recovery/internal/model"
)

const maxPendingChallenges = 4096

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)

// RoleResolver decides which role a signed-in account receives.
type RoleResolver interface {
	IsOwner(identity common.Address) bool
}

// AuthService issues JWTs to accounts that prove control of an address by
// signing a one-time challenge.
type AuthService struct {
	jwtSecret     []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	challengeTTL  time.Duration
	roles         RoleResolver
	challenges    *expirable.LRU[common.Address, model.LoginChallenge]
	now           func() time.Time
	mu            sync.Mutex
	refreshTokens map[string]common.Address
}

func NewAuthService(jwtSecret string, accessTTL time.Duration, refreshTTL time.Duration, challengeTTL time.Duration, roles RoleResolver) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if roles == nil {
		return nil, errors.New("role resolver is required")
	}

	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		challengeTTL:  challengeTTL,
		roles:         roles,
		challenges:    expirable.NewLRU[common.Address, model.LoginChallenge](maxPendingChallenges, nil, challengeTTL),
		now:           time.Now,
		refreshTokens: map[string]common.Address{},
	}, nil
}

// Challenge issues a fresh message for address to sign. A newer challenge
// replaces any outstanding one.
func (s *AuthService) Challenge(rawAddress string) (model.LoginChallenge, error) {
	address, err := parseAccount(rawAddress)
	if err != nil {
		return model.LoginChallenge{}, err
	}

	nonce := uuid.NewString()
	expiresAt := s.now().UTC().Add(s.challengeTTL)
	challenge := model.LoginChallenge{
		Address:   address.Hex(),
		Nonce:     nonce,
		Message:   challengeMessage(address, nonce, expiresAt),
		ExpiresAt: expiresAt,
	}

	s.challenges.Add(address, challenge)
	return challenge, nil
}

// Login verifies an EIP-191 personal signature over the outstanding challenge.
func (s *AuthService) Login(rawAddress string, signature string) (model.TokenPair, error) {
	address, err := parseAccount(rawAddress)
	if err != nil {
		return model.TokenPair{}, err
	}

	challenge, ok := s.challenges.Get(address)
	if !ok || s.now().After(challenge.ExpiresAt) {
		return model.TokenPair{}, model.ErrChallengeNotFound
	}

	signer, err := recoverSigner(challenge.Message, signature)
	if err != nil {
		return model.TokenPair{}, err
	}
	if signer != address {
		return model.TokenPair{}, model.ErrInvalidSignature
	}

	s.challenges.Remove(address)
	return s.issueTokenPair(address)
}

func (s *AuthService) Refresh(refreshToken string) (model.TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken, "refresh")
	if err != nil {
		return model.TokenPair{}, err
	}

	s.mu.Lock()
	holder, exists := s.refreshTokens[refreshToken]
	if !exists || holder.Hex() != claims.Subject {
		s.mu.Unlock()
		return model.TokenPair{}, fmt.Errorf("%w: refresh token is no longer valid", ErrUnauthorized)
	}
	delete(s.refreshTokens, refreshToken)
	s.mu.Unlock()

	return s.issueTokenPair(holder)
}

func (s *AuthService) Logout(refreshToken string) {
	s.mu.Lock()
	delete(s.refreshTokens, refreshToken)
	s.mu.Unlock()
}

func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &model.AuthClaims{}
	claims.Type, _ = claimsMap["typ"].(string)
	claims.Subject, _ = claimsMap["sub"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if expectedType != "" && claims.Type != expectedType {
		return nil, fmt.Errorf("%w: unexpected token type", ErrUnauthorized)
	}
	if !common.IsHexAddress(claims.Subject) {
		return nil, fmt.Errorf("%w: invalid token subject", ErrUnauthorized)
	}

	return claims, nil
}

// Me reports the caller's current role, which may differ from the token's
// if ownership changed since it was issued.
func (s *AuthService) Me(claims *model.AuthClaims) model.AuthUser {
	address := common.HexToAddress(claims.Subject)
	return model.AuthUser{Address: address.Hex(), Role: s.roleOf(address)}
}

func (s *AuthService) roleOf(address common.Address) string {
	if s.roles.IsOwner(address) {
		return model.RoleOwner
	}
	return model.RoleAccount
}

func (s *AuthService) issueTokenPair(address common.Address) (model.TokenPair, error) {
	now := s.now().UTC()
	role := s.roleOf(address)

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":  address.Hex(),
		"role": role,
		"typ":  "access",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":  address.Hex(),
		"role": role,
		"typ":  "refresh",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	s.mu.Lock()
	s.refreshTokens[refreshToken] = address
	s.mu.Unlock()

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		User:         model.AuthUser{Address: address.Hex(), Role: role},
	}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func parseAccount(raw string) (common.Address, error) {
	address, err := model.ParseAddress(raw)
	if err != nil {
		return common.Address{}, err
	}
	if address == (common.Address{}) {
		return common.Address{}, model.ErrZeroIdentity
	}
	return address, nil
}

func challengeMessage(address common.Address, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("Sign in to guardian recovery\nAddress: %s\nNonce: %s\nExpires: %s",
		address.Hex(), nonce, expiresAt.Format(time.RFC3339))
}

// personalHash is the EIP-191 "personal_sign" digest of message.
func personalHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}

func recoverSigner(message string, signature string) (common.Address, error) {
	sig := common.FromHex(strings.TrimSpace(signature))
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes", model.ErrInvalidSignature, crypto.SignatureLength)
	}

	// Wallets emit v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
