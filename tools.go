//go:build tools

// Package gochatrelay tracks the module's code generation tools.
//
// The blank import keeps mockgen pinned in go.mod so `go generate ./...`
// works on a fresh checkout.
package gochatrelay

import (
	_ "go.uber.org/mock/mockgen"
)
