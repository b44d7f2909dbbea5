// Package metrics exposes Prometheus collectors for the gateway's
// correlation and connection lifecycles.
//
// Collectors live on a per-instance registry rather than the process-global
// default, matching the gateway's no-ambient-state rule. The registry is
// served on the configured metrics address when enabled.
package metrics
