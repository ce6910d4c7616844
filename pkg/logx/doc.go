// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a small Logger value type with closure-based fields and a
// Service that owns the configured sinks (console, file) and supports
// live reconfiguration via Apply().
package logx
