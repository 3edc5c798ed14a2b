package notifier

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	logx "pushrelay/pkg/logx"
)

const maxIconBytes = 2 << 20

// IconCache turns push icons into local files the notification daemon can
// read. Data URIs are decoded and remote images downloaded once per URL.
// Icon names and local paths pass through unchanged.
type IconCache struct {
	dir    string
	client *http.Client
	log    logx.Logger
	group  singleflight.Group
}

func NewIconCache(dir string, log logx.Logger) *IconCache {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pushrelay-icons")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &IconCache{
		dir:    dir,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Resolve returns a local path or icon name for icon, or "" if it cannot be
// materialized.
func (c *IconCache) Resolve(ctx context.Context, icon string) string {
	icon = strings.TrimSpace(icon)
	switch {
	case icon == "":
		return ""
	case strings.HasPrefix(icon, "data:"), strings.HasPrefix(icon, "http://"), strings.HasPrefix(icon, "https://"):
	default:
		return icon
	}

	sum := sha1.Sum([]byte(icon))
	path := filepath.Join(c.dir, hex.EncodeToString(sum[:]))
	if _, err := os.Stat(path); err == nil {
		return path
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		var data []byte
		var err error
		if strings.HasPrefix(icon, "data:") {
			data, err = decodeDataURI(icon)
		} else {
			data, err = c.fetch(ctx, icon)
		}
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(c.dir, 0o700); err != nil {
			return "", err
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return "", err
		}
		return path, os.Rename(tmp, path)
	})
	if err != nil {
		c.log.Debug("icon unavailable", logx.String("icon", truncate(icon, 80)), logx.Err(err))
		return ""
	}
	return v.(string)
}

func (c *IconCache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("icon fetch: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxIconBytes {
		return nil, errors.New("icon fetch: image too large")
	}
	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(payload), nil
	}
	return base64.StdEncoding.DecodeString(payload)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
