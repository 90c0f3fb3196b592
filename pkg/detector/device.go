package detector

import (
	"strings"

	"github.com/mileusna/useragent"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

var botKeywords = []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "headless", "python-requests", "go-http-client"}

type familyMatcher struct {
	family   string
	keywords []string
}

// Order matters: Chromium derivatives also advertise "chrome" and "safari".
var browserFamilies = []familyMatcher{
	{"edge", []string{"edg/", "edge/", "edga/", "edgios/"}},
	{"opera", []string{"opr/", "opera"}},
	{"ie", []string{"msie", "trident/"}},
	{"firefox", []string{"firefox", "fxios"}},
	{"chrome", []string{"chrome", "crios", "chromium"}},
	{"safari", []string{"safari"}},
}

// iOS user agents mention "Mac OS X" and Android ones mention "Linux".
var osFamilies = []familyMatcher{
	{"ios", []string{"iphone", "ipad", "ipod"}},
	{"android", []string{"android"}},
	{"windows", []string{"windows"}},
	{"macos", []string{"macintosh", "mac os"}},
	{"linux", []string{"linux", "x11"}},
}

func DetectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if IsBot(ua) {
		return DeviceBot
	}

	tabletKeywords := []string{"tablet", "ipad"}
	for _, keyword := range tabletKeywords {
		if strings.Contains(ua, keyword) {
			return DeviceTablet
		}
	}

	mobileKeywords := []string{"mobile", "android", "iphone", "ipod", "blackberry", "windows phone"}
	for _, keyword := range mobileKeywords {
		if strings.Contains(ua, keyword) {
			return DeviceMobile
		}
	}

	if strings.Contains(ua, "mozilla") || strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") {
		return DeviceDesktop
	}

	return DeviceUnknown
}

func IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if strings.TrimSpace(ua) == "" {
		return true
	}
	for _, keyword := range botKeywords {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// BrowserFamily returns the coarse browser counter name, "other" when nothing
// matches.
func BrowserFamily(userAgent string) string {
	return matchFamily(browserFamilies, userAgent)
}

// OSFamily returns the coarse OS counter name, "other" when nothing matches.
func OSFamily(userAgent string) string {
	return matchFamily(osFamilies, userAgent)
}

func matchFamily(families []familyMatcher, userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, f := range families {
		for _, keyword := range f.keywords {
			if strings.Contains(ua, keyword) {
				return f.family
			}
		}
	}
	return "other"
}

// Agent is the detailed parse of a user agent string.
type Agent struct {
	BrowserFamily  string
	Browser        string
	BrowserVersion string
	OSFamily       string
	OS             string
	OSVersion      string
	DeviceType     string
	DeviceBrand    string
	DeviceModel    string
	Bot            bool
}

func Parse(userAgent string) Agent {
	ua := useragent.Parse(userAgent)

	agent := Agent{
		BrowserFamily:  BrowserFamily(userAgent),
		Browser:        ua.Name,
		BrowserVersion: ua.Version,
		OSFamily:       OSFamily(userAgent),
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		DeviceType:     DetectDeviceType(userAgent),
		DeviceModel:    ua.Device,
		Bot:            ua.Bot || IsBot(userAgent),
	}
	if agent.Bot {
		agent.DeviceType = DeviceBot
	}
	if agent.Browser == "" {
		agent.Browser = agent.BrowserFamily
	}
	if agent.OS == "" {
		agent.OS = agent.OSFamily
	}
	agent.DeviceBrand = deviceBrand(agent.OSFamily, ua.Device)

	return agent
}

func deviceBrand(osFamily, device string) string {
	d := strings.ToLower(device)
	switch {
	case osFamily == "ios" || strings.HasPrefix(d, "iphone") || strings.HasPrefix(d, "ipad") || osFamily == "macos":
		return "Apple"
	case strings.HasPrefix(d, "sm-") || strings.Contains(d, "samsung"):
		return "Samsung"
	case strings.HasPrefix(d, "pixel"):
		return "Google"
	case strings.Contains(d, "redmi") || strings.Contains(d, "xiaomi") || strings.HasPrefix(d, "mi "):
		return "Xiaomi"
	case strings.Contains(d, "huawei"):
		return "Huawei"
	default:
		return ""
	}
}

func GetClientIP(remoteAddr, xForwardedFor, xRealIP string) string {
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xRealIP != "" {
		return xRealIP
	}

	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return strings.Trim(remoteAddr[:idx], "[]")
	}

	return remoteAddr
}
