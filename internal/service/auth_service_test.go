package service

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-recovery/internal/model"
)

type staticOwner common.Address

func (o staticOwner) IsOwner(identity common.Address) bool {
	return identity == common.Address(o)
}

func newAuth(t *testing.T, owner common.Address, clock *fakeClock) *AuthService {
	t.Helper()
	svc, err := NewAuthService("test-secret", 15*time.Minute, 24*time.Hour, 5*time.Minute, staticOwner(owner))
	require.NoError(t, err)
	svc.now = clock.Now
	return svc
}

func signChallenge(t *testing.T, message string, key []byte) string {
	t.Helper()
	priv, err := crypto.ToECDSA(key)
	require.NoError(t, err)
	sig, err := crypto.Sign(personalHash(message), priv)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func TestAuthServiceSignatureLogin(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)
	rawKey := crypto.FromECDSA(key)

	clock := newFakeClock(time.Now().UTC())
	svc := newAuth(t, address, clock)

	challenge, err := svc.Challenge(address.Hex())
	require.NoError(t, err)
	assert.Contains(t, challenge.Message, address.Hex())
	assert.Contains(t, challenge.Message, challenge.Nonce)

	pair, err := svc.Login(address.Hex(), signChallenge(t, challenge.Message, rawKey))
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, pair.User.Role)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := svc.ValidateToken(pair.AccessToken, "access")
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), claims.Subject)
	assert.Equal(t, model.RoleOwner, svc.Me(claims).Role)

	t.Run("challenge is single use", func(t *testing.T) {
		_, err := svc.Login(address.Hex(), signChallenge(t, challenge.Message, rawKey))
		require.ErrorIs(t, err, model.ErrChallengeNotFound)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.Refresh(pair.AccessToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("refresh rotates and logout revokes", func(t *testing.T) {
		rotated, err := svc.Refresh(pair.RefreshToken)
		require.NoError(t, err)

		_, err = svc.Refresh(pair.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)

		svc.Logout(rotated.RefreshToken)
		_, err = svc.Refresh(rotated.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestAuthServiceRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	victimKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	attackerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	victim := crypto.PubkeyToAddress(victimKey.PublicKey)

	clock := newFakeClock(time.Now().UTC())
	svc := newAuth(t, ownerAddr, clock)

	challenge, err := svc.Challenge(victim.Hex())
	require.NoError(t, err)

	_, err = svc.Login(victim.Hex(), signChallenge(t, challenge.Message, crypto.FromECDSA(attackerKey)))
	require.ErrorIs(t, err, model.ErrInvalidSignature)

	_, err = svc.Login(victim.Hex(), "0x1234")
	require.ErrorIs(t, err, model.ErrInvalidSignature)

	// A failed attempt leaves the challenge usable by the real key holder.
	pair, err := svc.Login(victim.Hex(), signChallenge(t, challenge.Message, crypto.FromECDSA(victimKey)))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAccount, pair.User.Role)
}

func TestAuthServiceChallengeValidation(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now().UTC())
	svc := newAuth(t, ownerAddr, clock)

	_, err := svc.Challenge("0xnothex")
	require.ErrorIs(t, err, model.ErrInvalidIdentity)

	_, err = svc.Challenge(common.Address{}.Hex())
	require.ErrorIs(t, err, model.ErrZeroIdentity)

	_, err = svc.Login(g1Addr.Hex(), "0x00")
	require.ErrorIs(t, err, model.ErrChallengeNotFound)

	challenge, err := svc.Challenge(g1Addr.Hex())
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = svc.Login(g1Addr.Hex(), "0x00")
	require.ErrorIs(t, err, model.ErrChallengeNotFound)
	assert.True(t, challenge.ExpiresAt.Before(clock.Now()))
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	clock := newFakeClock(time.Now().UTC())
	svc := newAuth(t, ownerAddr, clock)

	challenge, err := svc.Challenge(address.Hex())
	require.NoError(t, err)
	pair, err := svc.Login(address.Hex(), signChallenge(t, challenge.Message, crypto.FromECDSA(key)))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.ValidateToken(pair.AccessToken, "access")
	require.ErrorIs(t, err, ErrInvalidToken)
}
