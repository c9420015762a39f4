// Package mega provides the shared configuration and error types used
// across the MEGA client packages (cryptoprim, attr, keys, transport,
// tree, upload, download, importer, session). It does not itself wire
// those packages into a single client — that glue is left to the caller.
package mega
