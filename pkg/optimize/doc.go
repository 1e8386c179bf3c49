// Package optimize composes stream-to-stream rewrites. A pass observes an
// upstream stream as a Handler and republishes its rewritten view as a new
// stream, so passes chain by wrapping: pass₂ registers on pass₁'s output,
// pass₃ on pass₂'s, and so on. Concrete passes for the reference command
// vocabulary live in optimize/passes.
package optimize
