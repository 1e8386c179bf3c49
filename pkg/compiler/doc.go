// Package compiler wires one compilation session: a raw stream fed by a
// front-end, an optional structural validator, the optimisation chain and a
// backend observing the optimised stream. Success requires the optimised
// stream to complete and the backend to report no failure.
package compiler
