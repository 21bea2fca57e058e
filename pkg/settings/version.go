package settings

// set by -ldflags "-X github.com/liut/agrochat/pkg/settings.version=..."
var version = "dev"
