package store

// IsValid reports whether e may be written: the id is absent or a positive
// Int, and no property value is nil.
func IsValid(e *Entity) bool {
	if e == nil || e.kind == "" {
		return false
	}

	if e.id != nil {
		id, ok := e.id.(Int)
		if !ok || id <= 0 {
			return false
		}
	}

	for _, v := range e.props {
		if v == nil {
			return false
		}
	}

	return true
}
