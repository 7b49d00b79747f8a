// Package resources manages a single hierarchical tree of learning resources
// and the files it points at.
//
// The tree is persisted whole through a TreeRepository (memory, Postgres or
// Badger). File nodes carry opaque locators produced by the upload Pipeline:
// either a durable store URL or, when no store is configured, an inline data
// URI. The Resolver maps a bare filename to its durable location by probing
// the store's kind partitions in a fixed order, and the Migrator uses it to
// rewrite legacy /uploads/ locators. The Proxy streams durable URLs back to
// clients, regenerating a signed URL once when the store denies access.
//
// Locators
//
// Durable objects live at <kind>/v1/<namespace>/<canonical>.<ext>. The
// canonical key is the staging name without its extension, so the same
// upload resolves to the same key in every kind partition.
package resources
