// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for closet using Mage.
//
//	mage build       Compile the closet binary to bin/
//	mage test:all    Run every test
//	mage test:race   Run the tests with the race detector
//	mage test:cover  Write a coverage profile to bin/
//	mage test:pkg N  Run the tests of one package
//	mage fmt         Check gofmt
//	mage lint        Run go vet and golangci-lint
//	mage install     Install closet to GOPATH/bin
//	mage stats       Print line counts per package
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "closet"
	binaryDir  = "bin"
	cmdDir     = "./cmd/closet"
)

// Build compiles the closet binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
