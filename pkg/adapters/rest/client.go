// Package rest implements core.Facade over the HTTP/XML API of the LIMS
// server.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/lims/pkg/core"
)

// ErrUnsupportedVersion is returned by CheckVersion when the server does not
// offer the API version of the base URI.
var ErrUnsupportedVersion = errors.New("unsupported API version")

var (
	exceptionTag = core.MustTag("exc:exception")
	versionTag   = core.MustTag("version")
)

// Config holds the connection settings.
type Config struct {
	// BaseURI is the versioned API root, e.g. https://lims.example.org/api/v2.
	BaseURI    string
	Username   string
	Password   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Parallelism bounds the individual fetches issued when a batch call
	// cannot serve every URI. Zero means 8.
	Parallelism int
}

// Client is a Facade talking to the LIMS server.
type Client struct {
	base     string
	version  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
	limit    int

	requests atomic.Int64
	failures atomic.Int64
}

var (
	_ core.Facade         = (*Client)(nil)
	_ core.Lister         = (*Client)(nil)
	_ core.VersionChecker = (*Client)(nil)
)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURI, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base uri %q", cfg.BaseURI)
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("base uri %q does not name an API version", cfg.BaseURI)
	}
	c := &Client{
		base:     u.String(),
		version:  path.Base(u.Path),
		username: cfg.Username,
		password: cfg.Password,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
		limit:    cfg.Parallelism,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.limit <= 0 {
		c.limit = 8
	}
	return c, nil
}

// BaseURI returns the versioned API root.
func (c *Client) BaseURI() string { return c.base }

// URI returns the address of a resource.
func (c *Client) URI(collection, id string) string {
	return c.base + "/" + collection + "/" + id
}

func (c *Client) Fetch(ctx context.Context, uri string) (*etree.Document, error) {
	doc, err := c.do(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty body from %s", core.ErrMalformedResponse, uri)
	}
	return doc, nil
}

func (c *Client) Update(ctx context.Context, uri string, doc *etree.Document) error {
	body, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", uri, err)
	}
	_, err = c.do(ctx, http.MethodPut, uri, body)
	return err
}

// BatchFetch posts one batch/retrieve request per collection. URIs the batch
// call does not answer are fetched one by one; those that do not exist are
// left out of the result.
func (c *Client) BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error) {
	out := make(map[string]*etree.Document, len(uris))
	groups := make(map[string][]string)
	var order []string
	for _, uri := range uris {
		coll, _ := core.CollectionOf(uri)
		if _, ok := groups[coll]; !ok {
			order = append(order, coll)
		}
		groups[coll] = append(groups[coll], uri)
	}

	var pending []string
	for _, coll := range order {
		members := groups[coll]
		got, err := c.batchRetrieve(ctx, coll, members)
		if err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				return nil, err
			}
			c.logger.Debug("batch retrieve unavailable", "collection", coll)
		}
		for _, uri := range members {
			if doc, ok := got[core.StripQuery(uri)]; ok {
				out[uri] = doc
				continue
			}
			pending = append(pending, uri)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}

	docs := make([]*etree.Document, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, uri := range pending {
		g.Go(func() error {
			doc, err := c.Fetch(gctx, uri)
			if errors.Is(err, core.ErrNotFound) {
				return nil
			}
			docs[i] = doc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, uri := range pending {
		if docs[i] != nil {
			out[uri] = docs[i]
		}
	}
	return out, nil
}

// batchRetrieve returns the documents of one collection keyed by their URI
// without query.
func (c *Client) batchRetrieve(ctx context.Context, collection string, uris []string) (map[string]*etree.Document, error) {
	req := etree.NewDocument()
	req.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	links := req.CreateElement("ri:links")
	ns, _ := core.NamespaceURI("ri")
	links.CreateAttr("xmlns:ri", ns)
	for _, uri := range uris {
		l := links.CreateElement("link")
		l.CreateAttr("uri", uri)
		l.CreateAttr("rel", collection)
	}
	body, err := req.WriteToBytes()
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, c.base+"/"+collection+"/batch/retrieve", body)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*etree.Document, len(uris))
	if resp == nil || resp.Root() == nil {
		return out, nil
	}
	for _, el := range resp.Root().ChildElements() {
		uri := el.SelectAttrValue("uri", "")
		if uri == "" {
			continue
		}
		out[core.StripQuery(uri)] = core.Detach(el)
	}
	return out, nil
}

// List walks every page of a collection listing.
func (c *Client) List(ctx context.Context, collection string, query url.Values) ([]core.ListEntry, error) {
	next := c.base + "/" + collection
	if len(query) > 0 {
		next += "?" + query.Encode()
	}
	var out []core.ListEntry
	seen := make(map[string]bool)
	for next != "" && !seen[next] {
		seen[next] = true
		doc, err := c.Fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		next = ""
		for _, el := range doc.Root().ChildElements() {
			uri := el.SelectAttrValue("uri", "")
			switch el.Tag {
			case "next-page":
				next = uri
				continue
			case "previous-page":
				continue
			}
			if uri == "" {
				continue
			}
			id := el.SelectAttrValue("limsid", "")
			if id == "" {
				_, id = core.CollectionOf(uri)
			}
			out = append(out, core.ListEntry{ID: id, URI: uri, Element: el})
		}
	}
	return out, nil
}

// CheckVersion asks the server root which API versions it offers and fails
// unless the version of the base URI is among them.
func (c *Client) CheckVersion(ctx context.Context) error {
	root := c.base[:strings.LastIndexByte(c.base, '/')]
	doc, err := c.Fetch(ctx, root)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	var offered []string
	for _, el := range doc.Root().ChildElements() {
		if !versionTag.Matches(el) {
			continue
		}
		major := el.SelectAttrValue("major", "")
		if major == c.version {
			return nil
		}
		offered = append(offered, major)
	}
	return fmt.Errorf("%w: %s (server offers %s)", ErrUnsupportedVersion, c.version, strings.Join(offered, ", "))
}

func (c *Client) do(ctx context.Context, method, uri string, body []byte) (*etree.Document, error) {
	c.requests.Add(1)
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/xml")
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.failures.Add(1)
		c.logger.Error("request failed", "method", method, "uri", uri, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", core.ErrTransport, method, uri, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrTransport, uri, err)
	}
	c.logger.Debug("request", "method", method, "uri", uri, "status", resp.StatusCode, "duration", time.Since(start))

	if err := statusError(resp.StatusCode, method, uri, raw); err != nil {
		c.failures.Add(1)
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedResponse, uri, err)
	}
	if msg, ok := exceptionMessage(doc); ok {
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: %s %s: %s", core.ErrTransport, method, uri, msg)
	}
	return doc, nil
}

func statusError(status int, method, uri string, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var kind error
	switch status {
	case http.StatusNotFound:
		kind = core.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = core.ErrUnauthorized
	default:
		kind = core.ErrTransport
	}
	doc := etree.NewDocument()
	if doc.ReadFromBytes(body) == nil {
		if msg, ok := exceptionMessage(doc); ok {
			return fmt.Errorf("%w: %s %s: %d %s", kind, method, uri, status, msg)
		}
	}
	return fmt.Errorf("%w: %s %s: %d %s", kind, method, uri, status, http.StatusText(status))
}

// exceptionMessage reports the message of an exception document.
func exceptionMessage(doc *etree.Document) (string, bool) {
	root := doc.Root()
	if root == nil || !exceptionTag.Matches(root) {
		return "", false
	}
	if m := root.SelectElement("message"); m != nil {
		return strings.TrimSpace(m.Text()), true
	}
	return "exception without message", true
}
