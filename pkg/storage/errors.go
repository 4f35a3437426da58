package storage

import "fmt"

// StructuredStorageError reports a failed structured write. The transaction
// was rolled back and the database holds the previous snapshot, if any.
type StructuredStorageError struct {
	SearchID string
	Op       string
	Err      error
}

func (e *StructuredStorageError) Error() string {
	return fmt.Sprintf("structured storage %s for search %s: %v", e.Op, e.SearchID, e.Err)
}

func (e *StructuredStorageError) Unwrap() error {
	return e.Err
}
