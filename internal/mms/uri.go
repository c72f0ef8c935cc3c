package mms

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/NamanBalaji/mmsdl/internal/errors"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// ConnectInfo is the part of an mms URI needed to reach the stream.
type ConnectInfo struct {
	Host string
	Port int
	// Path is the directory part of the URI path without leading or
	// trailing slashes.
	Path string
	// File is the last path segment including any query string.
	File string
}

// CanHandle reports whether rawURL is an mms URI.
func CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return u.Scheme == mmsPkg.Scheme
}

// ParseConnectInfo splits an mms URI into host, port, directory and file.
func ParseConnectInfo(rawURL string) (ConnectInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ConnectInfo{}, fmt.Errorf("%w: %v", errors.ErrInvalidURL, err)
	}

	if u.Scheme != mmsPkg.Scheme {
		return ConnectInfo{}, fmt.Errorf("%w: %q", errors.ErrUnsupportedProtocol, u.Scheme)
	}

	if u.Hostname() == "" {
		return ConnectInfo{}, fmt.Errorf("%w: missing host", errors.ErrInvalidURL)
	}

	port := mmsPkg.DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return ConnectInfo{}, fmt.Errorf("%w: bad port %q", errors.ErrInvalidURL, p)
		}
	}

	p := strings.TrimPrefix(u.Path, "/")
	dir, file := "", p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		dir, file = p[:i], p[i+1:]
	}

	if file == "" {
		return ConnectInfo{}, fmt.Errorf("%w: no file in path %q", errors.ErrInvalidURL, u.Path)
	}

	if u.RawQuery != "" {
		file += "?" + u.RawQuery
	}

	return ConnectInfo{Host: u.Hostname(), Port: port, Path: dir, File: file}, nil
}

// LocalPath builds {dir}/{title}_{file}. The title has every character
// outside [A-Za-z0-9] replaced by '_' and the file loses its query string.
func LocalPath(dir, title, file string) string {
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}

	file = filepath.Base(filepath.FromSlash(file))

	name := file
	if title != "" {
		name = SanitizeTitle(title) + "_" + file
	}

	return filepath.Join(dir, name)
}

func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "_")
}
