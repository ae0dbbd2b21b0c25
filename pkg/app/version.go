package app

import "sync"

// Version is the version of the discordui library.
const Version = "v0.1.0"

var (
	versionMu  sync.RWMutex
	appVersion string
)

// AppVersion is the version of the application using discordui.
func AppVersion() string {
	versionMu.RLock()
	defer versionMu.RUnlock()
	return appVersion
}

// SetAppVersion sets the version of the application using discordui.
func SetAppVersion(v string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appVersion = v
}
