// Package tools holds the registry of stage adapters and helpers shared
// by the adapter implementations in its subpackages. Each subpackage
// wraps one external tool (terraform, trivy, sonarqube, docker, kubectl)
// as a stage adapter.
package tools
