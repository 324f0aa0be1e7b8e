package logfields

import (
	"log/slog"
	"strings"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath       = "path"
	KeyKey        = "key"
	KeySource     = "source"
	KeyOutputs    = "outputs"
	KeyReason     = "reason"
	KeyRule       = "rule"
	KeyStep       = "step"
	KeyRoot       = "root"
	KeyRunID      = "run_id"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func Source(s string) slog.Attr        { return slog.String(KeySource, s) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Rule(name string) slog.Attr       { return slog.String(KeyRule, name) }
func Step(name string) slog.Attr       { return slog.String(KeyStep, name) }
func Root(name string) slog.Attr       { return slog.String(KeyRoot, name) }
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Outputs(paths []string) slog.Attr { return slog.String(KeyOutputs, strings.Join(paths, ", ")) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
