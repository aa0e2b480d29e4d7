package record

// ListOptions provides filtering options for listing records.
type ListOptions struct {
	IncludeTombstones bool
	IDPrefix          string
	Limit             int
	Offset            int
}
