// Package lims is the Composition Root for the lims client.
//
// It connects the entity binding core (pkg/core, pkg/entities) with the
// document backends (pkg/adapters) using the Hexagonal Architecture pattern.
//
// Philosophy:
//
// A LIMS exposes every resource as an XML document at a stable URI. lims
// binds those documents to lazily fetched entities: reading a field fetches
// the document once, references resolve to the single live entity of their
// kind and id, and local edits are sent back with an explicit Put.
// The core only sees a Facade, so the same code runs against the REST API,
// a directory of fixtures, an S3 bucket or a SQL table.
//
// Features:
//
//   - **Identity Cache**: one entity per (kind, id) per session.
//   - **Declarative Bindings**: kinds declare their fields once; typed
//     accessors in pkg/entities read and write through them.
//   - **UDF Dictionary**: typed user-defined fields that edit the document in place.
//   - **Batch Fetch**: many entities in one round trip where the backend allows.
//   - **Pluggable Backends**: rest (default), fs (with optional git history),
//     s3, sql and an in-memory facade for tests.
//
// Usage:
//
//	s, err := lims.New(ctx, "https://lims.example.org/api/v2",
//		lims.WithCredentials("apiuser", "secret"),
//		lims.WithLogger(logger),
//	)
//
//	sample := entities.Samples(s).Get("ADM1A1")
//	name, err := sample.Name(ctx)
package lims
