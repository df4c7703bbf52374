// Package page is the page assembly model: an ordered list of block
// instances plus page metadata.
//
// Instances reference their kind by name only and are re-resolved on every
// render. Every mutation keeps positions contiguous and instance ids unique.
// Marshal and Unmarshal preserve instance order and configuration exactly, so
// a page that was loaded and saved without edits produces identical bytes.
package page
