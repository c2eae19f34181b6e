//go:build tools
// +build tools

// Package tools pins the linter and the ginkgo runner, run the suites with
// `go run github.com/onsi/ginkgo/ginkgo -r`.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/onsi/ginkgo/ginkgo"
)
