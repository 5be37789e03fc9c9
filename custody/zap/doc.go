// Package zap provides the production log.Logger implementation backed by
// go.uber.org/zap, with environment-profile construction and an OpenTelemetry
// log bridge so records reach the collector alongside traces.
package zap
