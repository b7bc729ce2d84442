package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

var ipAddressPattern = regexp.MustCompile(`IPAddress`)

// ContainerInspect is the subset of `container inspect` output this package reads.
type ContainerInspect struct {
	Name            string           `json:"Name"`
	NetworkSettings *NetworkSettings `json:"NetworkSettings,omitempty"`
}

// NetworkSettings holds the container's default address and per-network endpoints.
type NetworkSettings struct {
	IPAddress string                     `json:"IPAddress"`
	Networks  map[string]EndpointSettings `json:"Networks,omitempty"`

	// network names in the order the engine reported them
	order []string
}

// UnmarshalJSON decodes the settings and records the order of Networks.
func (s *NetworkSettings) UnmarshalJSON(data []byte) error {
	type plain NetworkSettings
	aux := struct {
		*plain
		Networks json.RawMessage `json:"Networks,omitempty"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Networks, s.order = nil, nil
	if len(aux.Networks) == 0 || string(aux.Networks) == "null" {
		return nil
	}
	if err := json.Unmarshal(aux.Networks, &s.Networks); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(aux.Networks))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		s.order = append(s.order, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}

// NetworkNames returns the attached networks in reported order. Settings built
// in code rather than decoded fall back to sorted names.
func (s *NetworkSettings) NetworkNames() []string {
	if len(s.order) == len(s.Networks) {
		return slices.Clone(s.order)
	}
	return slices.Sorted(maps.Keys(s.Networks))
}

// EndpointSettings is one network attachment.
type EndpointSettings struct {
	IPAddress string `json:"IPAddress"`
}

// Inspect runs `container inspect name` and decodes the result.
func Inspect(ctx context.Context, e runtime.Executor, name string) ([]ContainerInspect, error) {
	h, err := e.Command(ctx, "container", "inspect", name)
	if err != nil {
		return nil, err
	}
	buf, err := h.WaitStdout(ctx, process.Expect(0))
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", name, err)
	}
	raw, err := buf.WaitForMatch(ctx, ipAddressPattern, 0)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", name, err)
	}

	var inspects []ContainerInspect
	if err := json.Unmarshal([]byte(raw), &inspects); err != nil {
		return nil, fmt.Errorf("decoding inspect output for %s: %w: %w", name, ErrMalformedOutput, err)
	}
	return inspects, nil
}

// ContainerIP returns the container's IP address. The top-level address is
// preferred; otherwise the first reported network with an address is used.
func ContainerIP(ctx context.Context, e runtime.Executor, name string) (string, error) {
	inspects, err := Inspect(ctx, e, name)
	if err != nil {
		return "", err
	}

	settings := firstNetworkSettings(inspects)
	if settings == nil {
		return "", fmt.Errorf("inspecting %s: no NetworkSettings: %w", name, ErrMalformedOutput)
	}
	if settings.IPAddress != "" {
		return settings.IPAddress, nil
	}
	for _, network := range settings.NetworkNames() {
		if ip := settings.Networks[network].IPAddress; ip != "" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNoAddress)
}

// ContainerNetworks returns the address of every network the container is attached to.
func ContainerNetworks(ctx context.Context, e runtime.Executor, name string) (map[string]string, error) {
	inspects, err := Inspect(ctx, e, name)
	if err != nil {
		return nil, err
	}

	settings := firstNetworkSettings(inspects)
	if settings == nil {
		return nil, fmt.Errorf("inspecting %s: no NetworkSettings: %w", name, ErrMalformedOutput)
	}
	networks := make(map[string]string)
	for network, ep := range settings.Networks {
		if ep.IPAddress != "" {
			networks[network] = ep.IPAddress
		}
	}
	if len(networks) == 0 && settings.IPAddress != "" {
		networks["default"] = settings.IPAddress
	}
	if len(networks) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoAddress)
	}
	return networks, nil
}

// WaitContainerIP retries ContainerIP with exponential backoff while the
// container has no address yet.
func WaitContainerIP(ctx context.Context, e runtime.Executor, name string, attempts uint64) (string, error) {
	log := clog.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	var ip string
	op := func() error {
		var err error
		ip, err = ContainerIP(ctx, e, name)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedOutput) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Debug("container has no address yet", "container", name, "retry_in", next, "err", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, attempts), ctx), notify); err != nil {
		return "", err
	}
	return ip, nil
}

func firstNetworkSettings(inspects []ContainerInspect) *NetworkSettings {
	for _, in := range inspects {
		if in.NetworkSettings != nil {
			return in.NetworkSettings
		}
	}
	return nil
}
