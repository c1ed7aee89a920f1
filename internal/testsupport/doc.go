// Package testsupport provides fixtures shared by package tests: temp-dir
// configurations, stubbed binaries on PATH, and a ready registry.
package testsupport
