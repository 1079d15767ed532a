// Package gate decides whether a completed stage's findings satisfy its
// declared policy. Gate failures are business outcomes, not system errors:
// they fail the stage and cascade skips downstream, but never abort the
// executor.
package gate
