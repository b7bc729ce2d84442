package commands

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// HostsFile is where host mappings are written inside containers.
const HostsFile = "/etc/hosts"

// hostMappingConcurrency bounds parallel /etc/hosts writes in AddContainersHostMapping.
const hostMappingConcurrency = 4

// HostMappingRequest maps a container name to the addresses it is reachable at,
// keyed by hostname or network name: container -> key -> IP.
type HostMappingRequest map[string]map[string]string

// HostEntry is one `<ip> <hostname>` line.
type HostEntry struct {
	IP       string
	Hostname string
}

func (h HostEntry) String() string { return h.IP + " " + h.Hostname }

// FormatHostEntries renders entries as /etc/hosts lines, each preceded by a newline.
func FormatHostEntries(entries []HostEntry) string {
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString("\n")
		sb.WriteString(entry.String())
	}
	return sb.String()
}

// AddContainerHostMapping appends one `<ip> <hostname>` line per mapping entry
// to the container's /etc/hosts. Entries are written sorted by hostname.
func AddContainerHostMapping(ctx context.Context, e runtime.Executor, container string, mapping map[string]string) error {
	entries := make([]HostEntry, 0, len(mapping))
	for _, host := range slices.Sorted(maps.Keys(mapping)) {
		entries = append(entries, HostEntry{IP: mapping[host], Hostname: host})
	}
	return appendHostEntries(ctx, e, container, entries)
}

// AddContainersHostMapping makes every container in req resolve each of its
// siblings by name. Each container gets an `<ip> <sibling>` line for every
// address of every other container, minus the lines it already owns. A
// container with nothing missing succeeds without a write.
//
// Every container is processed independently; the returned map has an entry
// for each of them, nil on success.
func AddContainersHostMapping(ctx context.Context, e runtime.Executor, req HostMappingRequest) map[string]error {
	log := clog.FromContext(ctx)

	results := make(map[string]error, len(req))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(hostMappingConcurrency)
	for _, container := range slices.Sorted(maps.Keys(req)) {
		missing := MissingHostEntries(req, container)
		if len(missing) == 0 {
			log.Debug("host mapping already covered", "container", container)
			mu.Lock()
			results[container] = nil
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			err := appendHostEntries(ctx, e, container, missing)
			if err != nil {
				log.Warn("host mapping failed", "container", container, "err", err)
			}
			mu.Lock()
			results[container] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// MissingHostEntries returns the lines container needs for its siblings,
// minus those it already owns. Entries are ordered by sibling name, then by
// the key of each sibling address.
func MissingHostEntries(req HostMappingRequest, container string) []HostEntry {
	owned := req[container]

	var missing []HostEntry
	for _, sibling := range slices.Sorted(maps.Keys(req)) {
		if sibling == container {
			continue
		}
		addrs := req[sibling]
		for _, key := range slices.Sorted(maps.Keys(addrs)) {
			ip := addrs[key]
			if ip == "" || owned[sibling] == ip {
				continue
			}
			entry := HostEntry{IP: ip, Hostname: sibling}
			if !slices.Contains(missing, entry) {
				missing = append(missing, entry)
			}
		}
	}
	return missing
}

// HostMappingSucceeded reduces AddContainersHostMapping results to success flags.
func HostMappingSucceeded(results map[string]error) map[string]bool {
	ok := make(map[string]bool, len(results))
	for container, err := range results {
		ok[container] = err == nil
	}
	return ok
}

func appendHostEntries(ctx context.Context, e runtime.Executor, container string, entries []HostEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return AppendFile(ctx, e, container, HostsFile, FormatHostEntries(entries))
}
