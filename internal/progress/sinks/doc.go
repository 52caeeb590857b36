// Package sinks implements progress consumers that live outside the core
// package, currently structured logging.
package sinks
