// Package proxy turns inbound HTTP requests into scheduler jobs and
// relays them to the backend the scheduler assigns.
//
// The Handler parses the dispatch headers, submits a job and blocks until
// the job is answered. The Executor translates the request body, forwards
// it through a Forwarder and copies the backend response back to the
// caller. Failures are answered with a classified status code whose body
// follows the caller's Accept header.
package proxy
