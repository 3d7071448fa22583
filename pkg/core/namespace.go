package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// namespaces is the closed set of namespaces used by the LIMS documents,
// keyed by their conventional prefix. It is never mutated after init.
var namespaces = map[string]string{
	"artgr": "http://genologics.com/ri/artifactgroup",
	"art":   "http://genologics.com/ri/artifact",
	"cnf":   "http://genologics.com/ri/configuration",
	"con":   "http://genologics.com/ri/container",
	"ctp":   "http://genologics.com/ri/containertype",
	"exc":   "http://genologics.com/ri/exception",
	"file":  "http://genologics.com/ri/file",
	"lab":   "http://genologics.com/ri/lab",
	"perm":  "http://genologics.com/ri/permissions",
	"prc":   "http://genologics.com/ri/process",
	"prj":   "http://genologics.com/ri/project",
	"prop":  "http://genologics.com/ri/property",
	"prx":   "http://genologics.com/ri/processexecution",
	"ptp":   "http://genologics.com/ri/processtype",
	"res":   "http://genologics.com/ri/researcher",
	"rgt":   "http://genologics.com/ri/reagent",
	"ri":    "http://genologics.com/ri",
	"rtp":   "http://genologics.com/ri/reagenttype",
	"smp":   "http://genologics.com/ri/sample",
	"udf":   "http://genologics.com/ri/userdefined",
	"ver":   "http://genologics.com/ri/version",
}

// prefixes is the reverse of namespaces.
var prefixes = func() map[string]string {
	m := make(map[string]string, len(namespaces))
	for p, uri := range namespaces {
		m[uri] = p
	}
	return m
}()

// QName is a namespace-qualified element or attribute name.
// An empty Space denotes an unqualified name.
type QName struct {
	Space string // namespace URI
	Local string
}

// Tag resolves the short "prefix:name" form into a qualified name using the
// fixed namespace table. A name without a prefix is returned unqualified.
func Tag(name string) (QName, error) {
	prefix, local, found := strings.Cut(name, ":")
	if !found {
		return QName{Local: name}, nil
	}
	uri, ok := namespaces[prefix]
	if !ok {
		return QName{}, fmt.Errorf("%w: %q", ErrUnknownNamespace, prefix)
	}
	return QName{Space: uri, Local: local}, nil
}

// MustTag is like Tag but panics on an unknown prefix. It is meant for
// package-level declarations.
func MustTag(name string) QName {
	q, err := Tag(name)
	if err != nil {
		panic(err)
	}
	return q
}

// NamespaceURI returns the namespace registered for prefix.
func NamespaceURI(prefix string) (string, bool) {
	uri, ok := namespaces[prefix]
	return uri, ok
}

// Prefixes lists the registered prefixes in sorted order.
func Prefixes() []string {
	out := make([]string, 0, len(namespaces))
	for p := range namespaces {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// String renders the name in Clark notation ({uri}local).
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Matches reports whether el carries this name. Unqualified names only
// match unprefixed elements.
func (q QName) Matches(el *etree.Element) bool {
	if el == nil || el.Tag != q.Local {
		return false
	}
	if q.Space == "" {
		return el.Space == ""
	}
	return el.NamespaceURI() == q.Space
}

func findChild(parent *etree.Element, q QName) *etree.Element {
	if parent == nil {
		return nil
	}
	for child := range parent.ChildElementsSeq() {
		if q.Matches(child) {
			return child
		}
	}
	return nil
}

func findChildren(parent *etree.Element, q QName) []*etree.Element {
	if parent == nil {
		return nil
	}
	var out []*etree.Element
	for child := range parent.ChildElementsSeq() {
		if q.Matches(child) {
			out = append(out, child)
		}
	}
	return out
}

// createChild appends a new element named q under parent, declaring the
// namespace on the document root when no prefix is in scope for it.
func createChild(parent *etree.Element, q QName) *etree.Element {
	if q.Space == "" {
		return parent.CreateElement(q.Local)
	}
	return parent.CreateElement(prefixFor(parent, q.Space) + ":" + q.Local)
}

// prefixFor finds a prefix bound to uri in scope of el, declaring the
// conventional one on the outermost ancestor if none is bound.
func prefixFor(el *etree.Element, uri string) string {
	top := el
	for cur := el; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if a.Space == "xmlns" && a.Value == uri {
				return a.Key
			}
		}
		if cur.Parent() != nil && cur.Parent().Tag != "" {
			top = cur.Parent()
		}
	}
	prefix, ok := prefixes[uri]
	if !ok {
		prefix = "ns" + fmt.Sprint(len(top.Attr))
	}
	top.CreateAttr("xmlns:"+prefix, uri)
	return prefix
}

// Detach copies el into a standalone document, carrying over the namespace
// declarations it inherits from its ancestors.
func Detach(el *etree.Element) *etree.Document {
	cp := el.Copy()
	declared := make(map[string]bool)
	for _, a := range cp.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			declared[a.FullKey()] = true
		}
	}
	for anc := el.Parent(); anc != nil; anc = anc.Parent() {
		for _, a := range anc.Attr {
			isDecl := a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
			if !isDecl || declared[a.FullKey()] {
				continue
			}
			declared[a.FullKey()] = true
			cp.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return etree.NewDocumentWithRoot(cp)
}
