// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Race runs the tests with the race detector. The store and the collection
// lock are the packages it matters for.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Pkg runs the tests of one package under internal/ or pkg/, given by its
// directory name (for example "xmlcodec").
func (Test) Pkg(name string) error {
	for _, root := range []string{"internal", "pkg"} {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(dir); err == nil {
			return sh.RunV(binGo, "test", "-v", "./"+dir+"/...")
		}
	}
	return fmt.Errorf("no package %q under internal/ or pkg/", name)
}

// Cover writes a coverage profile to bin/coverage.out and prints the
// per-function summary.
func (Test) Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile", profile, "./..."); err != nil {
		return err
	}
	out, err := sh.Output(binGo, "tool", "cover", "-func", profile)
	if err != nil {
		return err
	}
	lines := strings.Split(out, "\n")
	fmt.Println(lines[len(lines)-1])
	return nil
}
