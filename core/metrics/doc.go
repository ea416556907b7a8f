// Package metrics defines the sinks that observe a hosting-capacity run.
// Sinks such as PromSink, InfluxSink or the MQTT publisher record one
// StepEvent per simulated timestamp and can be combined with NewMultiSink.
// Optional recorder interfaces are discovered by type assertion, so a sink
// only implements what it can store. The factory helpers return a MultiSink
// automatically when several sinks are configured.
package metrics
