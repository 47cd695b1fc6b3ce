//go:build tools

// Package tools pins build-time tool dependencies so `go mod tidy`
// keeps them in go.mod. Not compiled into the binary.
package tools

import (
	_ "github.com/swaggo/swag"
)
