/*
Package templating is the rendering boundary of the module. It wraps a Liquid
engine for template execution, a GitHub-flavoured Markdown renderer and an HTML
sanitising policy, and turns a template plus its bindings into either plain
Liquid output, HTML, or a marked node tree ready for the preview reconciler.

Parsed templates are cached by the SHA-256 of their source. The engine, the
renderer, the policy and the cache are rebuilt by Refresh, which also rejects
an unusable configuration so callers can roll back.

Variables enumerates the free variables of a template source. It is the
caller-side enumeration fed to the inference engine together with the source.

Custom filters available to templates, in addition to the Liquid standard set:

	json       encodes the value as JSON
	yesno      maps truthiness to "yes"/"no", or to the two given words
	pluralize  picks the singular or plural word for a count
*/
package templating
