// Package document implements the marker grammar, span model, structural
// validator, and repair pass for loom documents: markdown files annotated
// with HTML-comment markers that divide them into sections, subsections,
// tables, and locks.
//
// The package is the single owner of the document dialect. Everything above
// it (state resolution, editing, the workflow runner) works in terms of the
// Lines sequence and the spans produced by Parse, never by re-scanning raw
// text with its own patterns.
package document
