// Package commands composes multi-step engine operations (file transfer,
// /etc/hosts synchronization, shell resolution, network lifecycle and IP
// discovery) strictly on top of runtime.Executor.
//
// Every function takes the executor explicitly; the package holds no state.
// Failures are returned as errors, so an error result is the "absent" result.
// Use errors.Is with the runtime, process and output sentinels to tell the
// kinds apart.
package commands

import "errors"

var (
	// ErrMalformedOutput is returned when structured engine output did not parse.
	ErrMalformedOutput = errors.New("malformed engine output")

	// ErrNoAddress is returned when a container has no IP address.
	ErrNoAddress = errors.New("container has no IP address")

	// ErrBlankName is returned for empty or whitespace-only resource names.
	ErrBlankName = errors.New("name must not be blank")
)
