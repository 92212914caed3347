package eventstore

import (
	"git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite journal could not be opened.
	ErrDatabaseOpenFailed = errors.EventStoreError("could not open lifecycle journal").Build()

	// ErrInitializeSchemaFailed indicates the journal schema could not be created.
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize journal schema").Build()

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = errors.EventStoreError("failed to append event to journal").Build()

	// ErrEventQueryFailed indicates querying events failed.
	ErrEventQueryFailed = errors.EventStoreError("failed to query journal").Build()

	// ErrPublishFailed indicates an event could not be published to NATS.
	ErrPublishFailed = errors.EventStoreError("failed to publish event").Build()
)

// wrap attaches cause to one of the sentinels above, keeping it matchable
// with errors.Is.
func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.EventStoreError(sentinel.Message()).WithCause(cause).Build()
}
