// Package data provides hierarchical, validated value containers used to
// move structured data between process steps and their callers.
//
// An Element is a named, typed value with a property map, a dirty flag, and
// an optional validator. Elements of KindList own an ordered sequence of
// child elements; an element belongs to at most one list at a time, and
// appending it to a new list detaches it from the old one.
package data

import (
	"errors"
	"fmt"
)

var (
	// ErrImmutable is returned when a mutation is attempted on an element
	// that has been sealed with SetImmutable.
	ErrImmutable = errors.New("data: element is immutable")

	// ErrNotList is returned when a child operation is attempted on an
	// element that is not a list.
	ErrNotList = errors.New("data: element is not a list")
)

// Kind classifies the value an element carries.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindAny    Kind = "any"
	KindList   Kind = "list"
)

// List is an element that owns ordered children. It is the same underlying
// type as Element; use NewList to construct one.
type List = Element

// Element is a named, typed, optionally validated value container.
// The zero value is not usable; use NewElement or NewList.
type Element struct {
	name      string
	kind      Kind
	value     any
	props     map[string]string
	validator Validator

	modified  bool
	immutable bool

	parent   *List
	children []*Element // non-nil only for KindList
}

// NewElement creates a detached, unmodified element of the given kind.
func NewElement(name string, kind Kind) *Element {
	return &Element{
		name:  name,
		kind:  kind,
		props: make(map[string]string),
	}
}

// NewList creates a detached, empty list element.
func NewList(name string) *List {
	e := NewElement(name, KindList)
	e.children = make([]*Element, 0)
	return e
}

// Name returns the element's name.
func (e *Element) Name() string { return e.name }

// Kind returns the element's kind.
func (e *Element) Kind() Kind { return e.kind }

// IsList reports whether the element owns children.
func (e *Element) IsList() bool { return e.kind == KindList }

// Parent returns the list the element currently belongs to, or nil.
func (e *Element) Parent() *List { return e.parent }

// Value returns the element's value.
func (e *Element) Value() any { return e.value }

// SetValue assigns the element's value, running the validator first.
// A validation error leaves the element unchanged.
func (e *Element) SetValue(v any) error {
	if e.immutable {
		return ErrImmutable
	}
	if e.validator != nil {
		if err := e.validator.Validate(v); err != nil {
			return fmt.Errorf("element %q: %w", e.name, err)
		}
	}
	e.value = v
	e.markModified()
	return nil
}

// SetValidator installs a validator consulted by SetValue. Installing a
// validator does not re-check the current value.
func (e *Element) SetValidator(v Validator) error {
	if e.immutable {
		return ErrImmutable
	}
	e.validator = v
	return nil
}

// Property returns the named property and whether it is set.
func (e *Element) Property(key string) (string, bool) {
	v, ok := e.props[key]
	return v, ok
}

// SetProperty assigns a property.
func (e *Element) SetProperty(key, value string) error {
	if e.immutable {
		return ErrImmutable
	}
	e.props[key] = value
	e.markModified()
	return nil
}

// Properties returns a copy of the property map.
func (e *Element) Properties() map[string]string {
	out := make(map[string]string, len(e.props))
	for k, v := range e.props {
		out[k] = v
	}
	return out
}

// Modified reports whether the element has been changed since creation or
// the last ClearModified. Child mutations mark the owning list modified.
func (e *Element) Modified() bool { return e.modified }

// markModified sets the dirty flag here and on every ancestor list, so a
// change deep in a tree is visible at its root.
func (e *Element) markModified() {
	for n := e; n != nil; n = n.parent {
		n.modified = true
	}
}

// ClearModified resets the dirty flag, recursively for lists.
func (e *Element) ClearModified() {
	e.modified = false
	for _, c := range e.children {
		c.ClearModified()
	}
}

// Immutable reports whether the element has been sealed.
func (e *Element) Immutable() bool { return e.immutable }

// SetImmutable seals the element, recursively for lists. There is no way to
// unseal; take a copy instead.
func (e *Element) SetImmutable() {
	e.immutable = true
	for _, c := range e.children {
		c.SetImmutable()
	}
}

// Append adds a child to a list. If the child currently belongs to another
// list it is detached from it first, so an element has exactly one parent
// at any time. Appending an element that is already in this list moves it
// to the end.
func (e *Element) Append(child *Element) error {
	if !e.IsList() {
		return ErrNotList
	}
	if e.immutable {
		return ErrImmutable
	}
	if child.parent != nil {
		if err := child.parent.Remove(child); err != nil {
			return err
		}
	}
	child.parent = e
	e.children = append(e.children, child)
	e.markModified()
	return nil
}

// Remove detaches a child from the list. Removing an element that is not a
// child is a no-op.
func (e *Element) Remove(child *Element) error {
	if !e.IsList() {
		return ErrNotList
	}
	if e.immutable {
		return ErrImmutable
	}
	for i, c := range e.children {
		if c == child {
			e.children = append(e.children[:i], e.children[i+1:]...)
			child.parent = nil
			e.markModified()
			return nil
		}
	}
	return nil
}

// Children returns the list's children in order. The returned slice is a
// copy; the elements are not.
func (e *Element) Children() []*Element {
	out := make([]*Element, len(e.children))
	copy(out, e.children)
	return out
}

// Child returns the first child with the given name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Len returns the number of children.
func (e *Element) Len() int { return len(e.children) }
