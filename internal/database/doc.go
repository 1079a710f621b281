// Package database holds the device catalogue: the processor's area and
// output tree, loaded from its DbXmlInfo.xml export.
//
// The processor publishes its full programming database over HTTP. This
// package downloads it (skipping the download when the export timestamp
// shows nothing changed), decodes the area/output hierarchy, applies
// configured name-cleanup filters and path exclusions, and caches the
// result in SQLite so queries keep working when the processor's HTTP
// endpoint is down.
//
// Queries run against an in-memory snapshot: direct lookups by
// integration ID or output type, plus word-sequence name search over
// the hierarchy path with configurable synonym groups ("lamp" finding
// "Pendant Lights").
package database
