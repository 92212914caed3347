package state

import (
	"context"
	"encoding/json"
	"maps"
)

// Persisted keys.
const (
	KeyInstalledVersion   = "installed_version"
	KeyPreviousVersion    = "previous_version"
	KeyPendingVersion     = "pending_version"
	KeyPendingReady       = "pending_ready"
	KeyCanaryVersion      = "canary_version"
	KeyIgnoreList         = "ignore_list"
	KeyVersionHistory     = "version_history"
	KeyDownloadInProgress = "download_in_progress"
	KeyPendingDigest      = "pending_digest"
)

// Reader exposes typed reads. Absent or undecodable values read as zero.
type Reader interface {
	String(key string) (string, bool)
	Bool(key string) bool
	Strings(key string) []string
}

// Writer buffers typed writes for one transaction.
type Writer interface {
	Reader
	SetString(key, value string)
	SetBool(key string, value bool)
	SetStrings(key string, values []string)
	Delete(key string)
}

// Store is a transactional key/value record.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Writer) error) error
	Close() error
}

// txn buffers writes over a read function. A nil entry in writes is a delete.
type txn struct {
	get    func(key string) ([]byte, bool)
	writes map[string][]byte
}

func newTxn(get func(key string) ([]byte, bool)) *txn {
	return &txn{get: get, writes: make(map[string][]byte)}
}

func (t *txn) raw(key string) ([]byte, bool) {
	if v, ok := t.writes[key]; ok {
		return v, v != nil
	}
	return t.get(key)
}

func (t *txn) String(key string) (string, bool) {
	raw, ok := t.raw(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (t *txn) Bool(key string) bool {
	raw, ok := t.raw(key)
	if !ok {
		return false
	}
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}

// Strings never returns nil.
func (t *txn) Strings(key string) []string {
	out := []string{}
	raw, ok := t.raw(key)
	if !ok {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func (t *txn) SetString(key, value string) { t.put(key, value) }

func (t *txn) SetBool(key string, value bool) { t.put(key, value) }

func (t *txn) SetStrings(key string, values []string) {
	if values == nil {
		values = []string{}
	}
	t.put(key, values)
}

func (t *txn) Delete(key string) { t.writes[key] = nil }

func (t *txn) put(key string, v any) {
	// Marshalling strings, bools and string slices cannot fail.
	raw, _ := json.Marshal(v)
	t.writes[key] = raw
}

// apply merges buffered writes into a copy of base.
func (t *txn) apply(base map[string]json.RawMessage) map[string]json.RawMessage {
	next := make(map[string]json.RawMessage, len(base)+len(t.writes))
	maps.Copy(next, base)
	for k, v := range t.writes {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = json.RawMessage(v)
	}
	return next
}
