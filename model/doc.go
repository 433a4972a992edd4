// Package model defines the provider-agnostic abstraction for text
// completion models used by evalmesh, both as judges (see judge.Prompt) and
// as work functions under evaluation (see casesource.ModelWork).
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers remain decoupled from vendor SDKs. MockModel is a
// deterministic in-memory implementation for tests and examples.
package model
