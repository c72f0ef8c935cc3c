package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	maxConcurrentDownloads = 3
	mmsPort                = 1755
	mmsHTTPPort            = 80
	userAgent              = "NSPlayer/4.1.0.3856"
	dialTimeout            = 10 * time.Second
	saveInterval           = 10 * time.Second
)

var (
	downloadDir = xdg.UserDirs.Download
	stateDir    = filepath.Join(xdg.DataHome, configFileName)
)
