// Package testsupport builds throwaway configurations for package tests.
package testsupport
