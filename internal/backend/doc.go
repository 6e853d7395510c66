// Package backend holds the backend pool, the least-loaded balancer and
// the shared outbound HTTP transport.
//
// A Pool is built once from the configured address list and lives for the
// process lifetime. Each Slot carries a live count of the dispatch units
// executing on it. Balancers are pure: they read the counts and pick an
// index but never change them. The caller acquires and releases the slot.
package backend
