package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Guardian is a registry entry. Inactive entries are kept so that history
// is never erased, they are only dropped from the enumeration list.
type Guardian struct {
	Identity   common.Address `json:"identity"`
	Active     bool           `json:"active"`
	Weight     uint64         `json:"weight"`
	LastActive time.Time      `json:"last_active"`
}

type GuardianInfo struct {
	Identity   common.Address `json:"identity"`
	Active     bool           `json:"active"`
	Weight     uint64         `json:"weight"`
	LastActive time.Time      `json:"last_active"`
}

type GuardianListData struct {
	Guardians   []GuardianInfo `json:"guardians"`
	TotalWeight uint64         `json:"total_weight"`
}
