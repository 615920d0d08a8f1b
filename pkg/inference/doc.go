/*
Package inference discovers how a template uses its variables and turns that
evidence into typed, enumerated descriptors suitable for building an editing UI.

It does not parse the full Liquid grammar. A small set of anchored pattern
matchers scans the raw template source for three kinds of usage: comparisons
against literals ({% if v == 'x' %}), bare boolean conditions ({% if v %}) and
case/when blocks. A fourth, optional pass seeds the kind from the value the
variable currently holds in the document's metadata.

Every detector yields partial evidence; evidence is folded with a fixed
precedence, so the result is a pure function of its inputs and safe to compute
concurrently from any number of goroutines.
*/
package inference
