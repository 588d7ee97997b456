package model

import (
	"time"
)

// Globals contains global flags for the CLI.
type Globals struct {
	Version         VersionFlag   `name:"version" help:"Print version information and quit"`
	LogLevel        string        `name:"log-level" default:"info" enum:"trace,debug,info,warn,error" env:"PHOTO_SEARCH_LOG_LEVEL" help:"Log level."`
	JSONLogs        bool          `name:"json-logs" env:"PHOTO_SEARCH_JSON_LOGS" help:"Write logs as JSON."`
	BaseURL         string        `name:"base-url" default:"http://api.flickr.com" env:"PHOTO_SEARCH_BASE_URL" help:"Base URL of the photo feed service."`
	Timeout         time.Duration `name:"timeout" default:"30s" env:"PHOTO_SEARCH_TIMEOUT" help:"Timeout for a single feed request."`
	ExpireAfter     time.Duration `name:"expire-after" default:"5m" env:"PHOTO_SEARCH_EXPIRE_AFTER" help:"Keep search results cached for this long."`
	NoCache         bool          `name:"no-cache" env:"PHOTO_SEARCH_NO_CACHE" help:"Disable the search result cache."`
	AllowPrivateIPs bool          `name:"allow-private-ips" env:"PHOTO_SEARCH_ALLOW_PRIVATE_IPS" help:"Allow feed and thumbnail hosts on private networks."`
}
