// Package metrics records gateway client activity as Prometheus collectors.
package metrics
