//go:build tools
// +build tools

// Package tools lists development-only tooling. The build tag keeps this file
// out of normal builds; none of these are runtime dependencies and none are
// tracked in go.mod.
package tools

// Install via `go install`:
//
// air - live reload while iterating on the API and pipeline workers
//   go install github.com/air-verse/air@v1.63.0
//   https://github.com/air-verse/air
