package updater

import (
	"git.home.luguber.info/inful/hotupdate/internal/foundation"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
)

// DefaultStageVersion is used when a stage request names no version.
const DefaultStageVersion = "pending"

// ContentHost serves the active content and reloads it on request.
type ContentHost interface {
	Reload(activeDir string) error
}

// StageRequest asks for the artifact at URL to be fetched and staged.
type StageRequest struct {
	URL     string `json:"url"`
	Version string `json:"version,omitempty"`
}

// Versions is the result of listIgnored and listHistory.
type Versions struct {
	Versions []string `json:"versions"`
}

// Status is a best-effort debug view of the bookkeeping. Absent versions
// are nil and encode as null.
type Status struct {
	BundleVersion    string   `json:"bundleVersion"`
	InstalledVersion *string  `json:"installedVersion"`
	PreviousVersion  *string  `json:"previousVersion"`
	CanaryVersion    *string  `json:"canaryVersion"`
	PendingVersion   *string  `json:"pendingVersion"`
	HasPendingUpdate bool     `json:"hasPendingUpdate"`
	IgnoreList       []string `json:"ignoreList"`
	PendingDigest    *string  `json:"pendingDigest,omitempty"`
	CanaryState      string   `json:"canaryState,omitempty"`
}

// Result is the typed outcome of a void operation.
type Result = foundation.Result[foundation.Void, *ferrors.ClassifiedError]

func success() Result { return foundation.Done[*ferrors.ClassifiedError]() }

func fail(err *ferrors.ClassifiedError) Result {
	return foundation.Err[foundation.Void](err)
}

// classify returns err as a ClassifiedError, wrapping unclassified errors
// as internal failures.
func classify(err error, message string) *ferrors.ClassifiedError {
	if c, ok := ferrors.AsClassified(err); ok {
		return c
	}
	return ferrors.WrapError(err, ferrors.CategoryInternal, message).Build()
}

// nopHost is used when no content host is wired.
type nopHost struct{}

func (nopHost) Reload(string) error { return nil }
