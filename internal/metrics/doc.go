// Package metrics exposes controller, pipeline and GPIO counters for
// Prometheus. Collectors are package-level and the helpers are safe to call
// before Register; they do nothing until registration succeeds.
package metrics
