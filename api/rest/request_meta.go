package rest

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/zlnvch/deskfolio/service"
)

// clientIP trusts proxy headers in the order a typical CDN and load balancer
// chain sets them.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func requestMeta(r *http.Request) service.RequestMeta {
	referrer := r.Header.Get("Referer")
	if referrer == "" {
		referrer = r.Header.Get("Referrer")
	}

	var contentLength *int64
	if v := r.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			contentLength = &n
		}
	} else if r.ContentLength > 0 {
		n := r.ContentLength
		contentLength = &n
	}

	userAgent := r.UserAgent()
	if userAgent == "" {
		userAgent = "unknown"
	}

	return service.RequestMeta{
		IPAddress:      clientIP(r),
		UserAgent:      userAgent,
		Referrer:       referrer,
		Origin:         r.Header.Get("Origin"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Method:         r.Method,
		ContentType:    r.Header.Get("Content-Type"),
		ContentLength:  contentLength,
	}
}
