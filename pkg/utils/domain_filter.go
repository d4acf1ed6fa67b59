package utils

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/jingkaihe/llmsync/pkg/logger"
)

const (
	// DomainRefreshInterval defines how often to reload the domains file
	DomainRefreshInterval = 30 * time.Second
)

// DomainFilter restricts which hosts sync sources may be fetched from.
// Entries come from inline patterns (the allowed_domains config key) and an
// optional file with one host or glob per line; the file is re-read every
// DomainRefreshInterval. An empty filter allows every host.
type DomainFilter struct {
	mu           sync.RWMutex
	filePath     string
	inline       []string
	domains      map[string]bool // exact match domains
	globPatterns []glob.Glob
	rawPatterns  []string // original pattern strings for debugging
	lastLoadTime time.Time
	now          func() time.Time
}

// NewDomainFilter creates a domain filter from a file path (may be empty) and
// inline patterns.
func NewDomainFilter(filePath string, patterns ...string) *DomainFilter {
	if strings.HasPrefix(filePath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			filePath = filepath.Join(home, filePath[2:])
		}
	}

	df := &DomainFilter{
		filePath: filePath,
		inline:   patterns,
		now:      time.Now,
	}
	df.loadDomains()
	return df
}

func (df *DomainFilter) loadDomains() {
	df.mu.Lock()
	defer df.mu.Unlock()

	newDomains := make(map[string]bool)
	newGlobPatterns := make([]glob.Glob, 0)
	newRawPatterns := make([]string, 0)

	add := func(line string) {
		hostname := normalizeHost(line)
		if hostname == "" {
			return
		}
		if strings.ContainsAny(hostname, "*?") {
			if g, err := glob.Compile(hostname); err == nil {
				newGlobPatterns = append(newGlobPatterns, g)
				newRawPatterns = append(newRawPatterns, hostname)
				return
			}
		}
		newDomains[hostname] = true
	}

	for _, p := range df.inline {
		add(p)
	}

	if df.filePath != "" {
		file, err := os.Open(df.filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.G(context.TODO()).WithError(err).WithField("path", df.filePath).Error("failed to open allowed domains file")
			}
		} else {
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				add(line)
			}
			file.Close()
		}
	}

	df.domains = newDomains
	df.globPatterns = newGlobPatterns
	df.rawPatterns = newRawPatterns
	df.lastLoadTime = df.now()
}

// normalizeHost reduces a line that may be a bare host, a URL or a host with
// a path to its lower-cased hostname.
func normalizeHost(line string) string {
	domain := strings.ToLower(strings.TrimSpace(line))
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}

	if parsed, err := url.Parse(domain); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}

	hostname := strings.TrimPrefix(domain, "https://")
	hostname = strings.TrimPrefix(hostname, "http://")
	if i := strings.Index(hostname, "/"); i != -1 {
		hostname = hostname[:i]
	}
	return hostname
}

func (df *DomainFilter) shouldReload() bool {
	if df.filePath == "" {
		return false
	}
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.now().Sub(df.lastLoadTime) > DomainRefreshInterval
}

// IsAllowed reports whether the host of urlStr may be fetched.
func (df *DomainFilter) IsAllowed(urlStr string) (bool, error) {
	if df.shouldReload() {
		df.loadDomains()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false, err
	}

	domain := strings.ToLower(parsedURL.Hostname())

	// local mirrors and test servers
	if isLocalHostDomain(domain) {
		return true, nil
	}

	df.mu.RLock()
	defer df.mu.RUnlock()

	if len(df.domains) == 0 && len(df.globPatterns) == 0 {
		return true, nil
	}

	if df.domains[domain] {
		return true, nil
	}

	for _, pattern := range df.globPatterns {
		if pattern.Match(domain) {
			return true, nil
		}
	}

	return false, nil
}

func isLocalHostDomain(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}

	return false
}

// GetAllowedDomains returns the exact hosts (sorted) followed by the glob patterns.
func (df *DomainFilter) GetAllowedDomains() []string {
	df.mu.RLock()
	defer df.mu.RUnlock()

	result := make([]string, 0, len(df.domains)+len(df.rawPatterns))
	for domain := range df.domains {
		result = append(result, domain)
	}
	sort.Strings(result)

	return append(result, df.rawPatterns...)
}
