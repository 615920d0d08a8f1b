/*
Package document is the host document store. A document is a named text made
of an optional YAML frontmatter block and a template body:

	---
	title: Release notes
	published: false
	---
	# {{ title }}

Frontmatter values are the current values of the template's variables. They
are read with ParseFrontmatter and written back one key at a time with
SetFrontmatterValue, which edits the YAML node tree so the order of keys and
their comments survive.

Store keeps documents in SQLite through database/sql; the driver is chosen by
the caller. It can import a directory of Markdown files and export a single
document back to disk.
*/
package document
