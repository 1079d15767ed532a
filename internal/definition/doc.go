// Package definition loads pipeline definitions from HCL files.
//
// A definition declares a pipeline block with stage blocks, each naming
// its adapter, dependencies, parameters, timeout and optional gate.
// Environment variables are exposed to expressions as `env.*`.
package definition
