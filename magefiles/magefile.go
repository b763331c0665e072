//go:build mage

// Package main contains Mage build targets for deep-researcher developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	".secrets",
	"output",
}

// secretFiles are the API key files the CLI reads from .secrets/.
var secretFiles = []string{
	"groq-api-key",
	"tavily-api-key",
}

// Init creates the project directories and empty secret files to fill in.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	for _, name := range secretFiles {
		path := filepath.Join(".secrets", name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		fmt.Println("  ", path, "(empty, add your key)")
	}
	fmt.Println("Project initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "deep-researcher"
	cmdPkg  = "./cmd/deep-researcher"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs Vet and Test.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Research builds the CLI and researches query in report style, exporting
// the run to output/.
func Research(query string) error {
	mg.Deps(Build, Init)
	return sh.RunV(filepath.Join(binDir, binName), "research", query,
		"--style", "report", "--export", filepath.Join("output", "last-run.md"))
}

// Clean removes build output.
func Clean() error {
	return os.RemoveAll(binDir)
}
