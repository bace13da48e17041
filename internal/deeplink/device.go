package deeplink

import "strings"

// Device is the coarse client class used to pick a redirect strategy
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// mobileTokens are lowercase User-Agent fragments that mark a mobile client
var mobileTokens = []string{
	"android",
	"iphone",
	"ipad",
	"ipod",
	"blackberry",
	"iemobile",
	"ie mobile",
	"opera mini",
}

// ClassifyUserAgent returns DeviceMobile when the User-Agent contains a
// known mobile platform token (case-insensitive), DeviceDesktop otherwise.
func ClassifyUserAgent(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

