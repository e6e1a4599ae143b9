// Package timestamp converts segment file names to capture instants and back.
//
// Patterns are strftime style (for example "%Y%m%d_%H%M%S") and always match
// the whole base name: leading or trailing text is a parse failure. The same
// pattern formats merged output names, which join the start and end stamps of
// a group with OutputSeparator so they can be decoded again exactly.
package timestamp
