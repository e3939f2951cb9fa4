// Package authz resolves role-based authorization rules for inbound
// requests.
//
// The ordered rule table is constructed once at startup from explicit
// Rule values and injected into the Matcher; the first rule whose method
// and compiled path pattern match the stage-normalized path is
// authoritative. Absence of a match is a deny. The Emitter turns
// validator and matcher output into a typed Decision whose context is
// flattened to flat strings only at the wire boundary.
package authz
