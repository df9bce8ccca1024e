// Package cache implements the disk cache that backs the tiered storage
// layer: entries live at CacheDir/<key>, writes commit through a temp file +
// atomic rename so readers never observe partial content, and a periodic
// sweeper reclaims space oldest-access-first when usage exceeds the budget.
// Key resolution is a pure lexical check; no operation can touch a path
// outside CacheDir. On platforms without POSIX rename-over-open-handle
// semantics, a Get racing an Invalidate may surface a read error, which
// callers treat the same as a miss.
package cache
