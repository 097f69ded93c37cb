// Package sentinel defines Error, a string error type that can be declared
// as a const. Every package in redislite declares its sentinel errors with
// it so that callers cannot reassign them.
package sentinel
