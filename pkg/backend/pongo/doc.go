// Package pongo is the reference backend: it turns a command stream into
// pongo2 source and parses it into an executable Unit.
//
// Generated units always run with autoescaping disabled. Escaping is decided
// at compile time by the front-end, which wraps every dynamic value in an
// xss runtime call; the backend renders that call as the tplc_xss filter.
//
// Procedures are emitted as macros ahead of the unit body. Includes are lazy
// and resolve through the engine's loaders when the unit executes, so a
// loader that returns compiled source (see pkg/unit) makes nested units work.
package pongo
