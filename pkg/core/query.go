package core

import (
	"net/url"
	"slices"
	"strings"

	"github.com/beevik/etree"
)

// pagingKeys are query parameters that select pages, not documents.
var pagingKeys = map[string]bool{"start-index": true, "start-count": true}

// MatchesQuery reports whether a document root satisfies every filter of a
// collection query, the way the LIMS server applies them. It is used by
// backends that list documents they store themselves.
//
// Supported keys: "udf.<Name>" matches a user-defined field by text,
// "projectlimsid" the limsid of the project reference, "state" the state
// parameter of the root uri. Any other key matches the text of the child
// element with that local name. Each key may carry several accepted values.
func MatchesQuery(root *etree.Element, query url.Values) bool {
	if root == nil {
		return false
	}
	for key, accepted := range query {
		if pagingKeys[key] || len(accepted) == 0 {
			continue
		}
		if !slices.ContainsFunc(queryCandidates(root, key), func(s string) bool {
			return slices.Contains(accepted, s)
		}) {
			return false
		}
	}
	return true
}

func queryCandidates(root *etree.Element, key string) []string {
	switch {
	case strings.HasPrefix(key, "udf."):
		name := strings.TrimPrefix(key, "udf.")
		var out []string
		fields := findChildren(root, udfFieldTag)
		for _, t := range findChildren(root, udfTypeTag) {
			fields = append(fields, findChildren(t, udfFieldTag)...)
		}
		for _, f := range fields {
			if f.SelectAttrValue("name", "") == name {
				out = append(out, f.Text())
			}
		}
		return out
	case key == "projectlimsid":
		if p := findChild(root, QName{Local: "project"}); p != nil {
			if id, err := limsID(p); err == nil {
				return []string{id}
			}
		}
		return nil
	case key == "state":
		if u, err := rootURI(root); err == nil {
			return u.Query()["state"]
		}
		return nil
	}
	var out []string
	for _, c := range findChildren(root, QName{Local: key}) {
		out = append(out, c.Text())
	}
	return out
}

// CollectionOf returns the collection segment and identifier of a resource
// URI of the form base/collection/id.
func CollectionOf(uri string) (collection, id string) {
	p := StripQuery(uri)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	id = p[i+1:]
	p = p[:i]
	return p[strings.LastIndexByte(p, '/')+1:], id
}
