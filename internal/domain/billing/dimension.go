package billing

import (
	"time"

	"github.com/costlens/costlens/internal/types"
)

// DimensionKey is one row of a reference dimension: a stable surrogate id
// for a natural key, created lazily on first observation and never mutated.
type DimensionKey struct {
	ID          uint64                `json:"id" db:"id"`
	Family      types.DimensionFamily `json:"dimension" db:"dimension"`
	NaturalKey  string                `json:"natural_key" db:"natural_key"`
	DisplayName string                `json:"display_name" db:"display_name"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
}

// DimensionRef is the fact-side reference to a dimension key. The zero value
// is the null reference used when a source record lacks the attribute.
type DimensionRef struct {
	Key         uint64
	DisplayName string
}

// IsNull reports whether the reference points at no dimension row.
func (r DimensionRef) IsNull() bool {
	return r.Key == 0
}

// DimensionRefs carries one reference per dimension family of a fact row.
type DimensionRefs struct {
	Account            DimensionRef
	Service            DimensionRef
	Sku                DimensionRef
	Resource           DimensionRef
	Region             DimensionRef
	SubAccount         DimensionRef
	CommitmentDiscount DimensionRef
}
