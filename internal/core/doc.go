// Package core ties the discovery engine together for the web server and
// the probe command. It has no transport code of its own.
//
// # Sources
//
// A [SourceConfig] names either a local file or a warehouse table. The
// [SchemaBuilder] validates it and dispatches to the file parser or the
// warehouse connector:
//
//	schema, err := builder.Discover(ctx, core.SourceConfig{
//	    Kind: core.KindFile,
//	    File: &core.FileSource{
//	        Path:       "orders.csv",
//	        FileConfig: source.DefaultFileConfig(),
//	    },
//	}, "")
//
// [SchemaBuilder.Open] returns a [Source] that can also page through rows.
//
// # Service
//
// [Service] adds what the HTTP layer needs on top of the builder: an
// [UploadStore] that keeps uploaded files under random UUID names, an
// [UploadLimiter] bounding concurrent uploads and imports, page size
// defaults, and the warehouse bulk loader.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - WH001-WH006: Warehouse errors (connection, dialect, auth)
//   - SRC001-SRC002: Source errors (not found, invalid config)
//   - SQL001-SQL003: Query errors
//   - FILE001-FILE008: File errors (size, encoding, format)
//   - IMP001: Import stopped part way
//   - UPL002-UPL005: Upload slots, cancellation and timeouts
package core
