// Package server hosts the gin engines of the gateway: the dispatch
// server, whose catch-all route hands every request to the scheduler,
// and the admin server exposing metrics, statistics and probes.
package server
