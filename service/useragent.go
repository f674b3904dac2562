package service

import (
	"regexp"
	"strings"
)

const unknown = "Unknown"

type UserAgentInfo struct {
	Browser        string
	BrowserVersion string
	OS             string
	Device         string
}

var (
	chromeVersionRe  = regexp.MustCompile(`chrome/([\d.]+)`)
	firefoxVersionRe = regexp.MustCompile(`firefox/([\d.]+)`)
	safariVersionRe  = regexp.MustCompile(`version/([\d.]+)`)
	edgeVersionRe    = regexp.MustCompile(`edg/([\d.]+)`)
	operaVersionRe   = regexp.MustCompile(`(?:opera|opr)/([\d.]+)`)
	androidVersionRe = regexp.MustCompile(`android ([\d.]+)`)
	iosVersionRe     = regexp.MustCompile(`os ([\d_]+)`)
)

// ParseUserAgent derives coarse browser, OS and device labels. An empty or
// "unknown" agent yields Unknown for everything.
func ParseUserAgent(userAgent string) UserAgentInfo {
	if userAgent == "" || userAgent == "unknown" {
		return UserAgentInfo{Browser: unknown, OS: unknown, Device: unknown}
	}

	ua := strings.ToLower(userAgent)
	info := UserAgentInfo{Browser: unknown, OS: unknown, Device: "Desktop"}

	// Edge and Opera also advertise chrome, so they are matched first
	switch {
	case strings.Contains(ua, "edg"):
		info.Browser, info.BrowserVersion = "Edge", firstMatch(edgeVersionRe, ua)
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr/"):
		info.Browser, info.BrowserVersion = "Opera", firstMatch(operaVersionRe, ua)
	case strings.Contains(ua, "chrome"):
		info.Browser, info.BrowserVersion = "Chrome", firstMatch(chromeVersionRe, ua)
	case strings.Contains(ua, "firefox"):
		info.Browser, info.BrowserVersion = "Firefox", firstMatch(firefoxVersionRe, ua)
	case strings.Contains(ua, "safari"):
		info.Browser, info.BrowserVersion = "Safari", firstMatch(safariVersionRe, ua)
	}

	// Android agents contain "linux" and iOS agents contain "mac os"
	switch {
	case strings.Contains(ua, "windows"):
		info.OS = windowsVersion(ua)
	case strings.Contains(ua, "android"):
		info.OS = "Android"
		if v := firstMatch(androidVersionRe, ua); v != "" {
			info.OS = "Android " + v
		}
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		info.OS = "iOS"
		if v := firstMatch(iosVersionRe, ua); v != "" {
			info.OS = "iOS " + strings.ReplaceAll(v, "_", ".")
		}
	case strings.Contains(ua, "mac os"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		info.Device = "Mobile"
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		info.Device = "Tablet"
	}

	return info
}

func windowsVersion(ua string) string {
	switch {
	case strings.Contains(ua, "windows nt 10"):
		return "Windows 10/11"
	case strings.Contains(ua, "windows nt 6.3"):
		return "Windows 8.1"
	case strings.Contains(ua, "windows nt 6.2"):
		return "Windows 8"
	case strings.Contains(ua, "windows nt 6.1"):
		return "Windows 7"
	default:
		return "Windows"
	}
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
