package app

import (
	"testing"

	"github.com/small-frappuccino/discordui/pkg/config"
)

func TestFormatStartupMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		appName    string
		appVersion string
		libVersion string
		want       string
	}{
		{
			name:       "no app version includes discordui",
			appName:    "demo",
			libVersion: "v0.1.0",
			want:       "Starting demo (discordui v0.1.0)...",
		},
		{
			name:       "different versions include both",
			appName:    "demo",
			appVersion: "v2.3.0",
			libVersion: "v0.1.0",
			want:       "Starting demo v2.3.0 (discordui v0.1.0)...",
		},
		{
			name:       "same versions omit discordui suffix",
			appName:    "demo",
			appVersion: "v0.1.0",
			libVersion: "v0.1.0",
			want:       "Starting demo v0.1.0...",
		},
		{
			name:       "trims spaces",
			appName:    " demo ",
			appVersion: " v0.1.0 ",
			libVersion: " v0.1.0 ",
			want:       "Starting demo v0.1.0...",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := formatStartupMessage(tc.appName, tc.appVersion, tc.libVersion)
			if got != tc.want {
				t.Fatalf("formatStartupMessage() mismatch\nwant: %q\ngot:  %q", tc.want, got)
			}
		})
	}
}

func TestLoggingOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug", LogFormat: "json", LogFile: "/tmp/bot.log", LogMaxSizeMB: 5, LogMaxBackups: 2}
	opts := loggingOptions(cfg)
	if opts.Level != "debug" || opts.Format != "json" || opts.File != "/tmp/bot.log" || opts.MaxSizeMB != 5 || opts.MaxBackups != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestAppVersionRoundTrip(t *testing.T) {
	SetAppVersion("v9.9.9")
	defer SetAppVersion("")
	if got := AppVersion(); got != "v9.9.9" {
		t.Fatalf("AppVersion() = %q", got)
	}
}
