package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	edgeWindowsUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	safariIPhoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	firefoxLinuxUA  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	chromeAndroidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	operaMacUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0"
	ieUA            = "Mozilla/5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko"
	ipadUA          = "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestBrowserFamily(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected string
	}{
		{"chrome", chromeWindowsUA, "chrome"},
		{"edge before chrome", edgeWindowsUA, "edge"},
		{"safari", safariIPhoneUA, "safari"},
		{"firefox", firefoxLinuxUA, "firefox"},
		{"opera before chrome", operaMacUA, "opera"},
		{"internet explorer", ieUA, "ie"},
		{"unknown", "SomethingElse/1.0", "other"},
		{"empty", "", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BrowserFamily(tt.ua))
		})
	}
}

func TestOSFamily(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected string
	}{
		{"windows", chromeWindowsUA, "windows"},
		{"ios before macos", safariIPhoneUA, "ios"},
		{"android before linux", chromeAndroidUA, "android"},
		{"linux", firefoxLinuxUA, "linux"},
		{"macos", operaMacUA, "macos"},
		{"unknown", "SomethingElse/1.0", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OSFamily(tt.ua))
		})
	}
}

func TestDetectDeviceType(t *testing.T) {
	assert.Equal(t, DeviceDesktop, DetectDeviceType(chromeWindowsUA))
	assert.Equal(t, DeviceMobile, DetectDeviceType(safariIPhoneUA))
	assert.Equal(t, DeviceMobile, DetectDeviceType(chromeAndroidUA))
	assert.Equal(t, DeviceTablet, DetectDeviceType(ipadUA))
	assert.Equal(t, DeviceBot, DetectDeviceType(googlebotUA))
	assert.Equal(t, DeviceBot, DetectDeviceType("curl/8.4.0"))
}

func TestIsBot(t *testing.T) {
	assert.True(t, IsBot(googlebotUA))
	assert.True(t, IsBot(""))
	assert.False(t, IsBot(chromeWindowsUA))
}

func TestParse(t *testing.T) {
	agent := Parse(chromeAndroidUA)

	assert.Equal(t, "chrome", agent.BrowserFamily)
	assert.Equal(t, "android", agent.OSFamily)
	assert.Equal(t, DeviceMobile, agent.DeviceType)
	assert.NotEmpty(t, agent.Browser)
	assert.False(t, agent.Bot)

	bot := Parse(googlebotUA)
	assert.True(t, bot.Bot)
	assert.Equal(t, DeviceBot, bot.DeviceType)
}

func TestGetClientIP(t *testing.T) {
	assert.Equal(t, "203.0.113.7", GetClientIP("10.0.0.1:5555", "203.0.113.7, 10.0.0.1", ""))
	assert.Equal(t, "198.51.100.2", GetClientIP("10.0.0.1:5555", "", "198.51.100.2"))
	assert.Equal(t, "10.0.0.1", GetClientIP("10.0.0.1:5555", "", ""))
	assert.Equal(t, "::1", GetClientIP("[::1]:5555", "", ""))
}
