package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyOpID       = "op_id"
	KeyOperation  = "operation"
	KeyVersion    = "version"
	KeyFrom       = "from_version"
	KeyTo         = "to_version"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyCode       = "code"
	KeyDigest     = "digest"
	KeyGeneration = "generation"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func OpID(id string) slog.Attr        { return slog.String(KeyOpID, id) }
func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func From(v string) slog.Attr         { return slog.String(KeyFrom, v) }
func To(v string) slog.Attr           { return slog.String(KeyTo, v) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Code(c string) slog.Attr         { return slog.String(KeyCode, c) }
func Digest(d string) slog.Attr       { return slog.String(KeyDigest, d) }
func Generation(g uint64) slog.Attr   { return slog.Uint64(KeyGeneration, g) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
