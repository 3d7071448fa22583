package core

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"
)

var (
	udfFieldTag = MustTag("udf:field")
	udfTypeTag  = MustTag("udf:type")
)

// UDFDictionary is a live view over the user-defined fields of one entity.
// Fields are udf:field elements, either directly under the document root
// (flat) or under a udf:type wrapper element (typed).
//
// Every mutation is applied to the entity document at once, so a view built
// later observes it. A view is bound to the document it was built from: once
// the entity is invalidated or refetched, its mutations fail with
// ErrStaleView and a new view must be taken.
type UDFDictionary struct {
	entity  *Entity
	root    *etree.Element
	typed   bool
	wrapper *etree.Element
	elems   []*etree.Element
	lookup  map[string]Value
}

func newUDFDictionary(e *Entity, root *etree.Element, typed bool) (*UDFDictionary, error) {
	if root == nil {
		return nil, fmt.Errorf("udf: %w: no document", ErrMissingElement)
	}
	d := &UDFDictionary{entity: e, root: root, typed: typed}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *UDFDictionary) scan() error {
	d.elems = nil
	d.lookup = make(map[string]Value)
	parent := d.root
	if d.typed {
		d.wrapper = findChild(d.root, udfTypeTag)
		parent = d.wrapper
	}
	for _, el := range findChildren(parent, udfFieldTag) {
		name := el.SelectAttrValue("name", "")
		v, err := parseFieldValue(el.SelectAttrValue("type", ""), el.Text())
		if err != nil {
			return fmt.Errorf("udf %q: %w", name, err)
		}
		d.elems = append(d.elems, el)
		d.lookup[name] = v
	}
	return nil
}

// live fails when the entity no longer holds the document this view was
// built from.
func (d *UDFDictionary) live() error {
	if d.entity.Root() != d.root {
		return fmt.Errorf("%s: %w", d.entity.Key(), ErrStaleView)
	}
	return nil
}

// Typed reports whether this is a view over a user-defined type.
func (d *UDFDictionary) Typed() bool { return d.typed }

// Type returns the name of the user-defined type, if any.
func (d *UDFDictionary) Type() (string, bool) {
	if d.wrapper == nil {
		return "", false
	}
	return d.wrapper.SelectAttrValue("name", ""), true
}

// SetType names the user-defined type. The name can only be chosen while
// the type holds no fields; the wrapper element is created if needed.
func (d *UDFDictionary) SetType(name string) error {
	if !d.typed {
		return ErrNotTyped
	}
	if err := d.live(); err != nil {
		return err
	}
	if len(d.elems) > 0 {
		return fmt.Errorf("%w: %d fields present", ErrTypeLocked, len(d.elems))
	}
	if d.wrapper == nil {
		d.wrapper = createChild(d.root, udfTypeTag)
	}
	d.wrapper.CreateAttr("name", name)
	return nil
}

// Get returns the value of the named field.
func (d *UDFDictionary) Get(key string) (Value, error) {
	v, ok := d.lookup[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

// Has reports whether the named field exists.
func (d *UDFDictionary) Has(key string) bool {
	_, ok := d.lookup[key]
	return ok
}

// Set assigns a value. An existing field keeps its declared type and rejects
// values of another shape without modifying anything. A new field gets a
// type inferred from the value.
func (d *UDFDictionary) Set(key string, value any) error {
	if err := d.live(); err != nil {
		return err
	}
	v, err := ValueOf(value)
	if err != nil {
		return err
	}
	if el := d.element(key); el != nil {
		declared := el.SelectAttrValue("type", "")
		cv, err := coerce(declared, v)
		if err != nil {
			return fmt.Errorf("udf %q: %w", key, err)
		}
		el.SetText(cv.wireText())
		d.lookup[key] = cv
		return nil
	}

	typ, err := fieldTypeOf(v)
	if err != nil {
		return fmt.Errorf("udf %q: %w", key, err)
	}
	parent := d.root
	if d.typed {
		if d.wrapper == nil {
			return fmt.Errorf("udf %q: %w", key, ErrNotTyped)
		}
		parent = d.wrapper
	}
	el := createChild(parent, udfFieldTag)
	el.CreateAttr("type", typ)
	el.CreateAttr("name", key)
	el.SetText(v.wireText())
	d.elems = append(d.elems, el)
	d.lookup[key] = v
	return nil
}

// Delete removes the named field and its element.
func (d *UDFDictionary) Delete(key string) error {
	if err := d.live(); err != nil {
		return err
	}
	if _, ok := d.lookup[key]; !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	delete(d.lookup, key)
	for i, el := range d.elems {
		if el.SelectAttrValue("name", "") != key {
			continue
		}
		if p := el.Parent(); p != nil {
			p.RemoveChild(el)
		}
		d.elems = append(d.elems[:i], d.elems[i+1:]...)
		break
	}
	return nil
}

// Items returns a snapshot of all fields.
func (d *UDFDictionary) Items() map[string]Value {
	out := make(map[string]Value, len(d.lookup))
	for k, v := range d.lookup {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (d *UDFDictionary) Keys() []string {
	keys := make([]string, 0, len(d.lookup))
	for k := range d.lookup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *UDFDictionary) Len() int { return len(d.lookup) }

// Clear removes every field. The type name of a typed view is kept.
func (d *UDFDictionary) Clear() error {
	if err := d.live(); err != nil {
		return err
	}
	for _, el := range d.elems {
		if p := el.Parent(); p != nil {
			p.RemoveChild(el)
		}
	}
	d.elems = nil
	d.lookup = make(map[string]Value)
	return nil
}

func (d *UDFDictionary) element(key string) *etree.Element {
	for _, el := range d.elems {
		if el.SelectAttrValue("name", "") == key {
			return el
		}
	}
	return nil
}
