// Package llm provides run summarizer implementations backed by LLM
// providers.
//
// The factory creates summarizers based on provider configuration.
// Currently supports:
//   - Anthropic Claude
package llm
