package proxy

import (
	"net/http"
	"strconv"
	"strings"
)

// Dispatch header names.
const (
	HeaderBundleID    = "3suite-bundle-id"
	HeaderBundleSize  = "3suite-bundle-size"
	HeaderBundleOrder = "3suite-bundle-order"
	HeaderPriority    = "3suite-priority"
)

var dispatchHeaders = []string{
	HeaderBundleID,
	HeaderBundleSize,
	HeaderBundleOrder,
	HeaderPriority,
}

// hopHeaders are connection-scoped and never relayed.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// DispatchInfo is the scheduling metadata carried by a request.
type DispatchInfo struct {
	// BundleID is empty for requests outside any bundle.
	BundleID string
	// BundleSize is the member count announced by this request. Values
	// that do not parse are 0.
	BundleSize int
	// BundleOrder is nil when the member has no sequence number.
	BundleOrder *int
	// Priority is 0 unless priorities are honored and the header parses.
	Priority int
}

// InBundle reports whether the request belongs to a bundle.
func (d DispatchInfo) InBundle() bool {
	return d.BundleID != ""
}

// ParseDispatchHeaders extracts the dispatch metadata from h. The
// priority header is ignored unless usePriority is set.
func ParseDispatchHeaders(h http.Header, usePriority bool) DispatchInfo {
	info := DispatchInfo{
		BundleID: strings.TrimSpace(h.Get(HeaderBundleID)),
	}

	if info.BundleID != "" {
		info.BundleSize, _ = parseInt(h.Get(HeaderBundleSize))
		if order, ok := parseInt(h.Get(HeaderBundleOrder)); ok {
			info.BundleOrder = &order
		}
	}

	if usePriority {
		info.Priority, _ = parseInt(h.Get(HeaderPriority))
	}

	return info
}

// StripDispatchHeaders removes the dispatch headers from h.
func StripDispatchHeaders(h http.Header) {
	for _, name := range dispatchHeaders {
		h.Del(name)
	}
}

// outboundHeader clones the inbound header for relaying to a backend.
func outboundHeader(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}
	StripDispatchHeaders(out)
	removeHopHeaders(out)
	out.Del("Content-Length")
	return out
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
