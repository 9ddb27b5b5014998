package shared

// Default and upper bounds for limit/offset listings.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Window is a normalised limit/offset pair.
type Window struct {
	Limit  int
	Offset int
}

// NewWindow clamps limit into [1, MaxLimit] and offset to >= 0.
func NewWindow(limit, offset int) Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Window{Limit: limit, Offset: offset}
}
