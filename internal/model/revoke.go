package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type RevokeStatus string

const (
	RevokeStatusRevoked        RevokeStatus = "revoked"
	RevokeStatusAlreadyRevoked RevokeStatus = "already_revoked"
)

type RevokeResult struct {
	Token    common.Address `json:"token"`
	Spender  common.Address `json:"spender"`
	Previous *big.Int       `json:"previous_allowance"`
	Status   RevokeStatus   `json:"status"`
}

type BatchRevokeData struct {
	Results []RevokeResult `json:"results"`
	Revoked int            `json:"revoked"`
}

type AllowanceData struct {
	Owner     common.Address `json:"owner"`
	Token     common.Address `json:"token"`
	Spender   common.Address `json:"spender"`
	Allowance *big.Int       `json:"allowance"`
	Revoked   bool           `json:"revoked"`
	Emergency bool           `json:"emergency"`
}

type EmergencyMarker struct {
	Token     common.Address `json:"token"`
	Spender   common.Address `json:"spender"`
	FlaggedBy common.Address `json:"flagged_by"`
	FlaggedAt time.Time      `json:"flagged_at"`
}
