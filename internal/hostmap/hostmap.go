// Package hostmap reads and writes host-mapping requests as YAML:
//
//	web:
//	  frontend: 10.0.0.2
//	db:
//	  backend: 10.1.0.3
package hostmap

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net/netip"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/joshrwolf/engine-exec/internal/commands"
)

// ErrInvalidAddress is returned for entries whose value is not an IP address.
var ErrInvalidAddress = errors.New("invalid IP address")

// Parse decodes a request document and validates every address.
func Parse(r io.Reader) (commands.HostMappingRequest, error) {
	var req commands.HostMappingRequest
	if err := yaml.NewDecoder(r).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return commands.HostMappingRequest{}, nil
		}
		return nil, fmt.Errorf("decoding host mapping: %w", err)
	}
	if req == nil {
		req = commands.HostMappingRequest{}
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks container names and addresses.
func Validate(req commands.HostMappingRequest) error {
	var errs []error
	for _, container := range slices.Sorted(maps.Keys(req)) {
		if container == "" {
			errs = append(errs, fmt.Errorf("container: %w", commands.ErrBlankName))
			continue
		}
		for key, ip := range req[container] {
			if _, err := netip.ParseAddr(ip); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %q: %w", container, key, ip, ErrInvalidAddress))
			}
		}
	}
	return errors.Join(errs...)
}

// Encode writes req in the format Parse reads.
func Encode(w io.Writer, req commands.HostMappingRequest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("encoding host mapping: %w", err)
	}
	return enc.Close()
}
