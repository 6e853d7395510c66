// Package stats records per-dispatch statistics.
//
// Recording is best effort: callers log a failed Record and move on. Two
// stores exist. MemoryStore keeps counters in process and suits tests and
// single instances. RedisStore pipelines HINCRBY counters so several
// instances can share one view:
//
//	<prefix>:total                 requests, <class>, duration_ms
//	<prefix>:backend               <addr>:requests, <addr>:<class>
//	<prefix>:minute:<YYYYMMDDhhmm> requests, <class>      (expires after TTL)
//	<prefix>:route                 <METHOD> <path>:<class> (when paths are tracked)
//
// <class> is the status class of the answer sent to the caller: 2xx, 3xx,
// 4xx or 5xx.
package stats
