// Package types provides shared value objects and type definitions
// used across multiple modules (Shared Kernel pattern).
package types

import (
	"strings"
)

const maxIDLength = 128

// OrderID identifies an order document. Upstream ids are opaque strings
// (document ids), so only shape is validated.
type OrderID struct {
	value string
}

func ParseOrderID(s string) (OrderID, error) {
	if !validID(s) {
		return OrderID{}, ErrInvalidID
	}
	return OrderID{value: s}, nil
}

func (id OrderID) String() string { return id.value }
func (id OrderID) IsZero() bool   { return id.value == "" }

// ItemID identifies a menu item across orders and reports.
type ItemID struct {
	value string
}

func ParseItemID(s string) (ItemID, error) {
	if !validID(s) {
		return ItemID{}, ErrInvalidID
	}
	return ItemID{value: s}, nil
}

func (id ItemID) String() string { return id.value }
func (id ItemID) IsZero() bool   { return id.value == "" }

func validID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	return strings.TrimSpace(s) == s
}

func (id OrderID) MarshalText() ([]byte, error) { return []byte(id.value), nil }

func (id *OrderID) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ItemID) MarshalText() ([]byte, error) { return []byte(id.value), nil }

func (id *ItemID) UnmarshalText(text []byte) error {
	parsed, err := ParseItemID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
