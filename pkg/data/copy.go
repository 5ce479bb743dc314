package data

// CopyMode selects how much of an element a copy carries.
type CopyMode int

const (
	// CopyFull copies value, properties, and (recursively) children.
	CopyFull CopyMode = iota

	// CopyFlat copies value and properties but no children.
	CopyFlat

	// CopyProperties copies properties only; the value is left unset.
	CopyProperties

	// CopyPlaceholder copies the name and kind only.
	CopyPlaceholder
)

// Copy returns a detached copy of the element. Copies have no parent, are
// mutable, and start unmodified regardless of the source's state.
func (e *Element) Copy(mode CopyMode) *Element {
	out := NewElement(e.name, e.kind)
	if e.IsList() {
		out.children = make([]*Element, 0, len(e.children))
	}

	switch mode {
	case CopyFull:
		out.value = e.value
		out.validator = e.validator
		copyProps(out, e)
		for _, c := range e.children {
			cc := c.Copy(CopyFull)
			cc.parent = out
			out.children = append(out.children, cc)
		}
	case CopyFlat:
		out.value = e.value
		out.validator = e.validator
		copyProps(out, e)
	case CopyProperties:
		copyProps(out, e)
	case CopyPlaceholder:
		// name and kind only
	}

	return out
}

func copyProps(dst, src *Element) {
	for k, v := range src.props {
		dst.props[k] = v
	}
}
