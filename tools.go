//go:build tools
// +build tools

// Package tools pins the code generators this module runs through
// `go generate`. The imports are never compiled into a binary; they only
// keep mockgen in go.mod and go.sum so a fresh checkout can regenerate
// the committed mocks without chasing missing entries.
package tox_lab

import (
	_ "go.uber.org/mock/mockgen"
)
