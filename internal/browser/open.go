// Package browser opens URLs with the desktop's default handler.
package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

var ErrUnsupportedScheme = errors.New("browser: unsupported url scheme")

// Opener launches URLs. The zero value uses the host OS handler.
type Opener struct {
	// start runs name with args and does not wait for it. Tests replace it.
	start func(name string, args ...string) error
	goos  string
}

func New() *Opener { return &Opener{} }

// Open opens rawURL in the user's default browser. Only http, https and
// mailto URLs are accepted.
func (o *Opener) Open(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("browser: parsing url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	name, args, err := command(o.os(), rawURL)
	if err != nil {
		return err
	}
	start := o.start
	if start == nil {
		start = func(name string, args ...string) error { return exec.Command(name, args...).Start() }
	}
	return start(name, args...)
}

func (o *Opener) os() string {
	if o.goos != "" {
		return o.goos
	}
	return runtime.GOOS
}

func command(goos, rawURL string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{rawURL}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{rawURL}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", rawURL}, nil
	default:
		return "", nil, fmt.Errorf("unsupported OS: %s", goos)
	}
}

// Open opens rawURL with a default Opener.
func Open(rawURL string) error { return New().Open(rawURL) }
