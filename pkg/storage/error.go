package storage

// ErrNotFound is returned when a conversation doesn't exist in the store.
type ErrNotFound struct {
	NodeID string
}

func (e ErrNotFound) Error() string {
	if e.NodeID == "" {
		return "conversation not found"
	}

	return "conversation not found: " + e.NodeID
}
