// Package discovery finds boards on the local network over mDNS/DNS-SD.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType        = "_naochess._tcp"
	mdnsDomain         = "local."
	DefaultScanTimeout = 5 * time.Second
)

// Board is one advertised board.
type Board struct {
	Instance string
	Host     string // IP address to dial, IPv4 preferred
	Port     int
	Metadata map[string]string
}

// Addr returns host:port.
func (b Board) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// MDNSDiscoverer browses for and advertises boards.
type MDNSDiscoverer struct {
	logger *slog.Logger
}

// NewMDNSDiscoverer creates a new MDNSDiscoverer.
func NewMDNSDiscoverer(logger *slog.Logger) *MDNSDiscoverer {
	return &MDNSDiscoverer{logger: logger}
}

// Scan browses for boards until timeout or ctx cancellation.
func (d *MDNSDiscoverer) Scan(ctx context.Context, timeout time.Duration) ([]Board, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	seen := make(map[string]Board)
	var wg sync.WaitGroup

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			board, ok := entryToBoard(entry)
			if !ok {
				continue
			}
			mu.Lock()
			seen[board.Instance] = board
			mu.Unlock()
			d.logger.Debug("mdns discovered board", "instance", board.Instance, "addr", board.Addr())
		}
	}()

	if err := resolver.Browse(scanCtx, ServiceType, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	result := make([]Board, 0, len(seen))
	for _, b := range seen {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Instance < result[j].Instance })
	return result, nil
}

// Advertise registers a board until ctx is cancelled. Call it in a goroutine.
func (d *MDNSDiscoverer) Advertise(ctx context.Context, name string, port int, metadata map[string]string) error {
	server, err := zeroconf.Register(name, ServiceType, mdnsDomain, port, formatTXTRecords(metadata), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	d.logger.Info("mdns advertising", "name", name, "service", ServiceType, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func entryToBoard(entry *zeroconf.ServiceEntry) (Board, bool) {
	var host string
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host = entry.AddrIPv6[0].String()
	} else {
		return Board{}, false
	}
	return Board{
		Instance: entry.ServiceRecord.Instance,
		Host:     host,
		Port:     entry.Port,
		Metadata: parseTXTRecords(entry.Text),
	}, true
}

func parseTXTRecords(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, t := range txt {
		parts := strings.SplitN(t, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

// formatTXTRecords renders metadata as sorted key=value strings.
func formatTXTRecords(metadata map[string]string) []string {
	txt := make([]string, 0, len(metadata))
	for k, v := range metadata {
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}
