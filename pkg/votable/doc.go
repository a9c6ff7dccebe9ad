// Package votable holds the structural tree of a VOTable document.
//
// Nodes are stored in an arena owned by a Document and refer to their parent and
// children by NodeID. Elements the format gives meaning to (FIELD, PARAM, TABLE, VALUES,
// LINK, GROUP, TIMESYS and others) are read through small typed views such as Field and
// Table, which are cheap values wrapping a Document and a NodeID.
//
// A Table's rows are not decoded when the tree is built. Table.Data inspects the DATA
// child on first use and returns a tabular.Data reading TABLEDATA nodes, a BINARY or
// BINARY2 stream, or a FITS extension through the document's Linker.
package votable
