// Package health serves liveness and readiness probes for the gateway.
//
// Readiness runs every registered check concurrently and reports 503
// when any of them fails: the scheduler no longer admits work, no
// backend is configured, or the statistics store is unreachable.
//
//	h := health.NewHandler(logger)
//	h.AddCheck(health.SchedulerCheck(sched))
//	h.RegisterRoutes(engine)
package health
