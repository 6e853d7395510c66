// Package scheduler implements the debounced priority admission queue,
// bundle aggregation and the self-scaling drain passes that hand queued
// units to the least-loaded backend.
//
// Every admission appends a unit to the queue. The first admission after
// quiescence arms a debounce timer and each further admission inside the
// window adds one wave. When the timer fires, one drain pass is launched
// per wave. A pass repeatedly takes the earliest unit with the highest
// priority, acquires a backend slot, executes the unit and releases the
// slot. It stops when the queue is empty or no slot is below the cap; a
// pass that is still executing will notice the remaining work when its
// unit completes.
//
// Queue scan, removal and slot acquisition happen under one mutex so no
// unit is ever dispatched twice.
package scheduler
