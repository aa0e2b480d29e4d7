package synclog

// ListOptions provides filtering options for listing sync history.
type ListOptions struct {
	Type   EntryType
	Table  string
	Limit  int
	Offset int
}
