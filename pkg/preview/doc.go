/*
Package preview keeps live previews of documents. Each Session owns a host
container node; every Render re-renders the document with its current
frontmatter values (plus any overrides) and reconciles the result into that
container, reporting the mutations it applied. Markup added with Overlay
belongs to the host and is never touched by later renders.
*/
package preview
