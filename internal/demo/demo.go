// Package demo holds the output format of the hello-julia smoke test,
// kept out of the cgo main package so it stays testable without the
// linked library.
package demo

import "fmt"

// Greeting formats the smoke test's single line of output.
func Greeting(v int) string {
	return fmt.Sprintf("Hello from Julia returned: %d", v)
}
