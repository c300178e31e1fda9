// Package toolapi exposes the telemetry tool surface over HTTP.
//
// Every endpoint speaks JSON. Responses built from factory data carry
// a data_source field naming the source that actually served them
// (live or snapshot). Requests that no source can serve return 503
// with remediation text rather than an empty result.
package toolapi
