package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemIdentity references a catalog entry. Type selects the catalog collection
// (e.g. "Gasket", "Ring"), Key is opaque to reconciliation.
type ItemIdentity struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

func (i ItemIdentity) Validate() error {
	if strings.TrimSpace(i.Type) == "" || strings.TrimSpace(i.Key) == "" {
		return ErrInvalidItemIdentity
	}
	if strings.ContainsAny(i.Type, ":|") || strings.ContainsAny(i.Key, ":|") {
		return ErrInvalidItemIdentity
	}
	return nil
}

// ParseItemIdentity reads the "type:key" form produced by String.
func ParseItemIdentity(s string) (ItemIdentity, error) {
	typ, key, ok := strings.Cut(s, ":")
	if !ok {
		return ItemIdentity{}, ErrInvalidItemIdentity
	}
	id := ItemIdentity{Type: typ, Key: key}
	if err := id.Validate(); err != nil {
		return ItemIdentity{}, err
	}
	return id, nil
}

func (i ItemIdentity) String() string {
	return i.Type + ":" + i.Key
}

// StockKey addresses one ledger balance.
type StockKey struct {
	Location string       `json:"location"`
	Item     ItemIdentity `json:"item"`
}

func (k StockKey) Validate() error {
	if strings.TrimSpace(k.Location) == "" || strings.ContainsAny(k.Location, ":|") {
		return ErrInvalidLocation
	}
	return k.Item.Validate()
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s|%s", k.Location, k.Item)
}

type MovementReason string

const (
	MovementSet      MovementReason = "set"
	MovementDispatch MovementReason = "dispatch"
	MovementReturn   MovementReason = "return"
)

// StockMovement is one journal line of the ledger. Delta is signed; for
// MovementSet it is the difference between the new and the previous balance.
type StockMovement struct {
	Key       StockKey       `json:"key"`
	Delta     int            `json:"delta"`
	Balance   int            `json:"balance"`
	Reason    MovementReason `json:"reason"`
	Reference string         `json:"reference,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
