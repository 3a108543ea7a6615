package client

// UserAgent describes the device to the server during handshake and sync.
type UserAgent struct {
	DeviceType      string `json:"deviceType"`
	Locale          string `json:"locale"`
	DeviceLocale    string `json:"deviceLocale"`
	OSVersion       string `json:"osVersion"`
	DeviceName      string `json:"deviceName"`
	HeaderUserAgent string `json:"headerUserAgent"`
	AppVersion      string `json:"appVersion"`
	Screen          string `json:"screen"`
	Timezone        string `json:"timezone"`
}

// DefaultUserAgent mimics a desktop web client.
func DefaultUserAgent() UserAgent {
	return UserAgent{
		DeviceType:      "WEB",
		Locale:          "ru",
		DeviceLocale:    "ru",
		OSVersion:       "Linux",
		DeviceName:      "Chrome",
		HeaderUserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36",
		AppVersion:      "25.9.15",
		Screen:          "1080x1920 1.0x",
		Timezone:        "Europe/Moscow",
	}
}

// merge fills empty fields of u from def.
func (u UserAgent) merge(def UserAgent) UserAgent {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&u.DeviceType, def.DeviceType)
	fill(&u.Locale, def.Locale)
	fill(&u.DeviceLocale, def.DeviceLocale)
	fill(&u.OSVersion, def.OSVersion)
	fill(&u.DeviceName, def.DeviceName)
	fill(&u.HeaderUserAgent, def.HeaderUserAgent)
	fill(&u.AppVersion, def.AppVersion)
	fill(&u.Screen, def.Screen)
	fill(&u.Timezone, def.Timezone)
	return u
}
