package simcontract

// EntityHandle is an opaque reference into the external component store.
// The Time Engine uses it to back scheduled events and in-transit
// messages with destroyable entities (spec.md §6).
type EntityHandle uint64

// ComponentStore is the contract spec.md §6 requires of the external ECS
// storage. The core only touches it from the Time Engine, to create and
// destroy entities for scheduled events and in-transit messages.
type ComponentStore interface {
	CreateEntity() EntityHandle
	DestroyEntity(h EntityHandle)
	AddComponent(h EntityHandle, value any)
	GetComponent(h EntityHandle, out any) bool
	EntitiesWithComponent(sample any) []EntityHandle
}
