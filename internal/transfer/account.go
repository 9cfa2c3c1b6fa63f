package transfer

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	SubTypeHolding  AccountSubType = iota // user wallet balance
	SubTypeCustody                        // assets held by the pool
	SubTypeIssuance                       // mint/burn boundary
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

const (
	AssetBase  AssetID = 1
	AssetShare AssetID = 2
)

var (
	assetToID = map[string]AssetID{
		"USDC":   AssetBase,
		"VSHARE": AssetShare,
	}
	idToAsset = map[AssetID]string{
		AssetBase:  "USDC",
		AssetShare: "VSHARE",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

func (a AssetID) String() string {
	if name, ok := idToAsset[a]; ok {
		return name
	}
	return fmt.Sprintf("asset(%d)", uint16(a))
}

// Party is anyone that can hold a balance: a user identity or the pool.
type Party struct {
	Scope    AccountScope
	EntityID [16]byte
}

var poolEntity = [16]byte{'v', 'a', 'u', 'l', 't', ':', 'p', 'o', 'o', 'l'}

// Holder returns the party for a user identity.
func Holder(id uuid.UUID) Party {
	return Party{Scope: AccountScopeUser, EntityID: id}
}

// Pool returns the pool's own party. It never equals a Holder.
func Pool() Party {
	return Party{Scope: AccountScopeSystem, EntityID: poolEntity}
}

func (p Party) IsPool() bool {
	return p == Pool()
}

// Account returns the balance key for this party and asset.
func (p Party) Account(asset AssetID) AccountKey {
	subType := SubTypeHolding
	if p.Scope == AccountScopeSystem {
		subType = SubTypeCustody
	}
	return AccountKey{
		Scope:    p.Scope,
		EntityID: p.EntityID,
		SubType:  subType,
		AssetID:  asset,
	}
}

func (p Party) String() string {
	if p.Scope == AccountScopeSystem {
		return "pool"
	}
	return uuid.UUID(p.EntityID).String()
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, fixed tag for the pool
	SubType  AccountSubType
	AssetID  AssetID
}

// NewIssuanceAccountKey returns the external mint/burn boundary for an asset.
func NewIssuanceAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeIssuance,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), k.AssetID)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), k.AssetID)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), k.AssetID)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeHolding:
		return "holding"
	case SubTypeCustody:
		return "custody"
	case SubTypeIssuance:
		return "issuance"
	default:
		return "unknown"
	}
}
