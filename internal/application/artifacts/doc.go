// Package artifacts implements the run-scoped, write-once artifact store
// through which stages pass references (image digests, report checksums,
// endpoints) to their dependents.
package artifacts
