// Package log defines the structured logging contract used across the custody
// packages. Components depend on the Logger interface only; the zap subpackage
// provides the production implementation.
package log
