package model

import "fmt"

// OwnerKind tags the entity type a stream is attached to. The core never
// dereferences owners; it only needs a stable (kind, id) pair.
type OwnerKind string

const (
	OwnerProject   OwnerKind = "project"
	OwnerOrder     OwnerKind = "order"
	OwnerUser      OwnerKind = "user"
	OwnerSystem    OwnerKind = "system"
	OwnerMilestone OwnerKind = "milestone"
	OwnerProduct   OwnerKind = "product"
)

func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerProject, OwnerOrder, OwnerUser, OwnerSystem, OwnerMilestone, OwnerProduct:
		return true
	}
	return false
}

// OwnerRef is a polymorphic reference to the object a stream belongs to.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s/%d", o.Kind, o.ID)
}
