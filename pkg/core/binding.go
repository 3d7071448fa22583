package core

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Variant enumerates the shapes a field binding can take.
type Variant int

const (
	VariantString      Variant = iota // text of a child element
	VariantInteger                    // base-10 integer text of a child element
	VariantAttribute                  // attribute of the root element
	VariantStringList                 // texts of every matching child
	VariantStringDict                 // children of one child, tag to text
	VariantRef                        // entity referenced by a child's uri
	VariantRefList                    // entities referenced by every matching child
	VariantState                      // state query parameter of the root uri
	VariantDimension                  // container type dimension record
	VariantLocation                   // container reference plus position label
	VariantPlacements                 // position label to placed entity
	VariantUDF                        // flat user-defined fields
	VariantUDT                        // user-defined fields under a named type
	VariantExternalIDs                // ri:externalid id/uri pairs
)

var variantNames = [...]string{
	"string", "integer", "attribute", "string-list", "string-dict", "ref",
	"ref-list", "state", "dimension", "location", "placements", "udf", "udt",
	"external-ids",
}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return "Variant(" + strconv.Itoa(int(v)) + ")"
}

// Binding maps one field of a Kind onto a location in the entity document.
// Bindings hold no per-entity state.
type Binding struct {
	Variant Variant
	Tag     QName  // child element, for element-based variants
	Attr    string // root attribute, for VariantAttribute
	Target  *Kind  // referenced kind, for reference variants
}

func StringField(tag string) Binding {
	return Binding{Variant: VariantString, Tag: MustTag(tag)}
}

func IntegerField(tag string) Binding {
	return Binding{Variant: VariantInteger, Tag: MustTag(tag)}
}

func AttributeField(attr string) Binding {
	return Binding{Variant: VariantAttribute, Attr: attr}
}

func StringListField(tag string) Binding {
	return Binding{Variant: VariantStringList, Tag: MustTag(tag)}
}

func StringDictField(tag string) Binding {
	return Binding{Variant: VariantStringDict, Tag: MustTag(tag)}
}

func RefField(tag string, target *Kind) Binding {
	return Binding{Variant: VariantRef, Tag: MustTag(tag), Target: target}
}

func RefListField(tag string, target *Kind) Binding {
	return Binding{Variant: VariantRefList, Tag: MustTag(tag), Target: target}
}

func StateField() Binding {
	return Binding{Variant: VariantState, Attr: "uri"}
}

func DimensionField(tag string) Binding {
	return Binding{Variant: VariantDimension, Tag: MustTag(tag)}
}

// LocationField binds a location element whose container child references
// an entity of the container kind.
func LocationField(tag string, container *Kind) Binding {
	return Binding{Variant: VariantLocation, Tag: MustTag(tag), Target: container}
}

// PlacementsField binds repeated placement elements, each naming the placed
// entity of the target kind by limsid and its position in a value child.
func PlacementsField(tag string, target *Kind) Binding {
	return Binding{Variant: VariantPlacements, Tag: MustTag(tag), Target: target}
}

func UDFField() Binding { return Binding{Variant: VariantUDF, Tag: udfFieldTag} }
func UDTField() Binding { return Binding{Variant: VariantUDT, Tag: udfTypeTag} }

func ExternalIDsField() Binding {
	return Binding{Variant: VariantExternalIDs, Tag: MustTag("ri:externalid")}
}

// Writable reports whether the binding supports Entity.Write.
func (b Binding) Writable() bool {
	switch b.Variant {
	case VariantString, VariantInteger, VariantState:
		return true
	}
	return false
}

// Dimension describes one axis of a container type.
type Dimension struct {
	IsAlpha bool
	Offset  int
	Size    int
}

// Location is a position inside a container.
type Location struct {
	Container *Entity
	Position  string
}

// ExternalID links an entity to a record in another system.
type ExternalID struct {
	ID  string
	URI string
}

var (
	valueTag     = QName{Local: "value"}
	containerTag = QName{Local: "container"}
)

func (b Binding) get(e *Entity, root *etree.Element) (any, error) {
	switch b.Variant {
	case VariantString:
		if el := findChild(root, b.Tag); el != nil {
			return el.Text(), nil
		}
		return nil, nil

	case VariantInteger:
		el := findChild(root, b.Tag)
		if el == nil {
			return nil, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(el.Text()))
		if err != nil {
			return nil, fmt.Errorf("%w: integer %q", ErrMalformedData, el.Text())
		}
		return n, nil

	case VariantAttribute:
		if a := root.SelectAttr(b.Attr); a != nil {
			return a.Value, nil
		}
		return nil, nil

	case VariantStringList:
		out := []string{}
		for _, el := range findChildren(root, b.Tag) {
			out = append(out, el.Text())
		}
		return out, nil

	case VariantStringDict:
		out := map[string]string{}
		if el := findChild(root, b.Tag); el != nil {
			for child := range el.ChildElementsSeq() {
				out[child.Tag] = child.Text()
			}
		}
		return out, nil

	case VariantRef:
		el := findChild(root, b.Tag)
		if el == nil {
			return nil, nil
		}
		id, err := refID(el)
		if err != nil {
			return nil, err
		}
		return e.session.Instance(b.Target, id), nil

	case VariantRefList:
		out := []*Entity{}
		for _, el := range findChildren(root, b.Tag) {
			id, err := refID(el)
			if err != nil {
				return nil, err
			}
			out = append(out, e.session.Instance(b.Target, id))
		}
		return out, nil

	case VariantState:
		u, err := rootURI(root)
		if err != nil {
			return nil, err
		}
		if states, ok := u.Query()["state"]; ok && len(states) > 0 {
			return states[0], nil
		}
		return nil, nil

	case VariantDimension:
		el := findChild(root, b.Tag)
		if el == nil {
			return nil, nil
		}
		return parseDimension(el)

	case VariantLocation:
		el := findChild(root, b.Tag)
		if el == nil {
			return nil, nil
		}
		loc := Location{}
		if c := findChild(el, containerTag); c != nil {
			id, err := limsID(c)
			if err != nil {
				return nil, err
			}
			loc.Container = e.session.Instance(b.Target, id)
		}
		if v := findChild(el, valueTag); v != nil {
			loc.Position = v.Text()
		}
		return loc, nil

	case VariantPlacements:
		out := map[string]*Entity{}
		for _, el := range findChildren(root, b.Tag) {
			id, err := limsID(el)
			if err != nil {
				return nil, err
			}
			pos := ""
			if v := findChild(el, valueTag); v != nil {
				pos = v.Text()
			}
			out[pos] = e.session.Instance(b.Target, id)
		}
		return out, nil

	case VariantUDF:
		return newUDFDictionary(e, root, false)

	case VariantUDT:
		return newUDFDictionary(e, root, true)

	case VariantExternalIDs:
		out := []ExternalID{}
		for _, el := range findChildren(root, b.Tag) {
			out = append(out, ExternalID{
				ID:  el.SelectAttrValue("id", ""),
				URI: el.SelectAttrValue("uri", ""),
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown binding variant %d", b.Variant)
}

func (b Binding) set(e *Entity, root *etree.Element, value any) error {
	switch b.Variant {
	case VariantString:
		el := findChild(root, b.Tag)
		if el == nil {
			return fmt.Errorf("%w: %s", ErrMissingElement, b.Tag)
		}
		switch v := value.(type) {
		case string:
			el.SetText(v)
		case nil:
			el.SetText("")
		default:
			return fmt.Errorf("%w: %T is not a string", ErrTypeMismatch, value)
		}
		return nil

	case VariantInteger:
		el := findChild(root, b.Tag)
		if el == nil {
			return fmt.Errorf("%w: %s", ErrMissingElement, b.Tag)
		}
		v, err := ValueOf(value)
		if err != nil {
			return err
		}
		i, ok := v.Int()
		if !ok {
			return fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, value)
		}
		el.SetText(strconv.FormatInt(i, 10))
		return nil

	case VariantState:
		u, err := rootURI(root)
		if err != nil {
			return err
		}
		switch v := value.(type) {
		case nil:
			u.RawQuery = ""
		case string:
			u.RawQuery = url.Values{"state": {v}}.Encode()
		default:
			return fmt.Errorf("%w: %T is not a string", ErrTypeMismatch, value)
		}
		u.ForceQuery = false
		root.CreateAttr(b.Attr, u.String())
		return nil
	}
	return fmt.Errorf("%w: %s binding", ErrReadOnlyField, b.Variant)
}

// refID extracts the identifier from the trailing path segment of an
// element's uri attribute.
func refID(el *etree.Element) (string, error) {
	raw := el.SelectAttrValue("uri", "")
	if raw == "" {
		return "", fmt.Errorf("%w: <%s> has no uri", ErrMalformedData, el.FullTag())
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: uri %q", ErrMalformedData, raw)
	}
	return path.Base(u.Path), nil
}

// limsID prefers the limsid attribute and falls back to the uri.
func limsID(el *etree.Element) (string, error) {
	if id := el.SelectAttrValue("limsid", ""); id != "" {
		return id, nil
	}
	return refID(el)
}

func rootURI(root *etree.Element) (*url.URL, error) {
	raw := root.SelectAttrValue("uri", "")
	if raw == "" {
		return nil, fmt.Errorf("%w: root has no uri", ErrMissingElement)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: uri %q", ErrMalformedData, raw)
	}
	return u, nil
}

func parseDimension(el *etree.Element) (Dimension, error) {
	var d Dimension
	if a := findChild(el, QName{Local: "is-alpha"}); a != nil {
		d.IsAlpha = strings.ToLower(strings.TrimSpace(a.Text())) == "true"
	}
	for _, f := range []struct {
		tag string
		dst *int
	}{{"offset", &d.Offset}, {"size", &d.Size}} {
		c := findChild(el, QName{Local: f.tag})
		if c == nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(c.Text()))
		if err != nil {
			return Dimension{}, fmt.Errorf("%w: %s %q", ErrMalformedData, f.tag, c.Text())
		}
		*f.dst = n
	}
	return d, nil
}
