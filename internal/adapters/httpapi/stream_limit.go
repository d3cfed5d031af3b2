package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// streamLimiter caps concurrently open streams globally and per remote host.
type streamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func newStreamLimiter(maxGlobal, maxPerClient int) *streamLimiter {
	if maxGlobal <= 0 || maxPerClient <= 0 {
		return nil
	}
	return &streamLimiter{
		maxGlobal:    maxGlobal,
		maxPerClient: maxPerClient,
		byClient:     make(map[string]int),
	}
}

func (l *streamLimiter) acquire(clientKey string) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[clientKey] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[clientKey]++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.global--
			if next := l.byClient[clientKey] - 1; next > 0 {
				l.byClient[clientKey] = next
			} else {
				delete(l.byClient, clientKey)
			}
		})
	}, true
}

func (l *streamLimiter) open() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

func remoteHost(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	if host = strings.TrimSpace(host); host == "" {
		return "unknown"
	}
	return host
}
