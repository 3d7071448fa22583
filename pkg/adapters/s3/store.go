// Package s3 keeps LIMS documents in an S3-compatible bucket (AWS S3 or
// MinIO), one object per resource under <prefix><collection>/<id>.xml.
// It shares the layout of the fs adapter so snapshots can be synced between
// the two with ordinary tooling.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/lims/pkg/core"
)

const (
	docExt      = ".xml"
	contentType = "application/xml"
)

// Config holds explicit construction parameters. Credentials fall back to
// the default AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Prefix          string // optional key prefix, e.g. "mirror/"
	Region          string // default us-east-1
	Endpoint        string // optional; custom endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	// BaseURI prefixes the URIs reported by List.
	BaseURI     string
	ReadOnly    bool
	Parallelism int // concurrent GETs in BatchFetch; zero means 8
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Store implements core.Facade and core.Lister on a bucket.
type Store struct {
	client *s3.Client
	cfg    Config

	gets atomic.Int64
	puts atomic.Int64
}

var (
	_ core.Facade = (*Store)(nil)
	_ core.Lister = (*Store)(nil)
)

// New creates a store, loading the AWS configuration from the environment
// and overriding it with cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.BaseURI = strings.TrimRight(cfg.BaseURI, "/")
	return &Store{client: client, cfg: cfg}, nil
}

// Key maps a resource URI onto its object key.
func (s *Store) Key(uri string) (string, error) {
	coll, id := core.CollectionOf(uri)
	if coll == "" || id == "" {
		return "", fmt.Errorf("%w: cannot map %q to an object key", core.ErrNotFound, uri)
	}
	return s.cfg.Prefix + coll + "/" + id + docExt, nil
}

func (s *Store) uriOf(key string) string {
	return s.cfg.BaseURI + "/" + strings.TrimSuffix(strings.TrimPrefix(key, s.cfg.Prefix), docExt)
}

// Fetch downloads and parses the object of uri.
func (s *Store) Fetch(ctx context.Context, uri string) (*etree.Document, error) {
	key, err := s.Key(uri)
	if err != nil {
		return nil, err
	}
	s.gets.Add(1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.cfg.Bucket, Key: &key})
	if err != nil {
		return nil, s.wrap("get", key, err)
	}
	defer out.Body.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedResponse, key, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", core.ErrMalformedResponse, key)
	}
	return doc, nil
}

// Update uploads doc as the object of uri.
func (s *Store) Update(ctx context.Context, uri string, doc *etree.Document) error {
	if s.cfg.ReadOnly {
		return core.ErrReadOnly
	}
	key, err := s.Key(uri)
	if err != nil {
		return err
	}
	body, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", key, err)
	}
	s.puts.Add(1)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.cfg.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return s.wrap("put", key, err)
	}
	s.cfg.Logger.Debug("object written", "bucket", s.cfg.Bucket, "key", key)
	return nil
}

// Delete removes the object of uri.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if s.cfg.ReadOnly {
		return core.ErrReadOnly
	}
	key, err := s.Key(uri)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.cfg.Bucket, Key: &key}); err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

// BatchFetch downloads the objects concurrently. Missing objects are left out.
func (s *Store) BatchFetch(ctx context.Context, uris []string) (map[string]*etree.Document, error) {
	docs := make([]*etree.Document, len(uris))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, uri := range uris {
		g.Go(func() error {
			doc, err := s.Fetch(ctx, uri)
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
	out := make(map[string]*etree.Document, len(uris))
	for i, uri := range uris {
		if docs[i] != nil {
			out[uri] = docs[i]
		}
	}
	return out, nil
}

// List enumerates the objects of collection and returns those whose
// documents match query, sorted by key.
func (s *Store) List(ctx context.Context, collection string, query url.Values) ([]core.ListEntry, error) {
	prefix := s.cfg.Prefix + collection + "/"
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.cfg.Bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s.wrap("list", prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			// Only direct children: nested keys are not resources.
			if strings.HasSuffix(key, docExt) && !strings.Contains(strings.TrimPrefix(key, prefix), "/") {
				keys = append(keys, key)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)

	uris := make([]string, len(keys))
	for i, k := range keys {
		uris[i] = s.uriOf(k)
	}
	docs, err := s.BatchFetch(ctx, uris)
	if err != nil {
		return nil, err
	}

	var entries []core.ListEntry
	for _, uri := range uris {
		doc, ok := docs[uri]
		if !ok || !core.MatchesQuery(doc.Root(), query) {
			continue
		}
		_, id := core.CollectionOf(uri)
		entries = append(entries, core.ListEntry{ID: id, URI: uri, Element: doc.Root()})
	}
	return entries, nil
}

// wrap maps SDK errors onto the core error vocabulary.
func (s *Store) wrap(op, key string, err error) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var re *awshttp.ResponseError
	switch {
	case errors.As(err, &noKey):
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	case errors.As(err, &noBucket):
		return fmt.Errorf("%w: bucket %s: %w", core.ErrTransport, s.cfg.Bucket, err)
	case errors.As(err, &re):
		switch re.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s %s: %w", core.ErrUnauthorized, op, key, err)
		}
	}
	return fmt.Errorf("%w: %s %s: %w", core.ErrTransport, op, key, err)
}
