// Package parser reads VOTable documents.
//
// Parse builds the whole tree and leaves table rows to be decoded on demand. The other
// entry points hand each table's rows to a tabular.TableHandler while the document is
// read, so large tables never sit in the tree:
//
//	err := parser.StreamTable(ctx, f, 0, store, parser.Options{})
//
// Inline BINARY and BINARY2 data is decoded by a second goroutine reading from a
// bounded pipe fed by the parser. Rows in files or URLs named by a STREAM href are read
// through a Resolver, and FITS payloads through a FITSReader.
package parser
