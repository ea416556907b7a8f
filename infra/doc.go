// Package infra contains technical adapters: the power-flow solver, table
// readers, exporters, metrics sinks and the MQTT publisher. These packages
// depend only on the interfaces defined in the core packages.
package infra
