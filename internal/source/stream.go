package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"pushrelay/internal/metrics"
	"pushrelay/internal/push"
	logx "pushrelay/pkg/logx"
)

const maxLine = 4 << 20

// Handler receives each decoded push.
type Handler func(ctx context.Context, raw push.Raw)

// Stream decodes newline-delimited push events. A line may be a bare push
// or an envelope {"type":"push","push":{...}}; other envelope types such
// as "nop" and "tickle" are skipped.
type Stream struct {
	r   io.Reader
	log logx.Logger
	m   *metrics.Metrics
}

func NewStream(r io.Reader, log logx.Logger, m *metrics.Metrics) *Stream {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Stream{r: r, log: log, m: m}
}

// OpenReader opens path for streaming. "" and "-" mean stdin.
func OpenReader(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return f, nil
}

// Run feeds h until the reader hits EOF or ctx is done. Lines that fail to
// decode are logged and skipped.
func (s *Stream) Run(ctx context.Context, h Handler) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 64<<10), maxLine)
		for sc.Scan() {
			line := bytes.Clone(sc.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read stream: %w", err)
			}
			return nil
		case line := <-lines:
			raw, ok, err := decodeLine(line)
			if err != nil {
				s.m.StreamEvent(err)
				s.log.Warn("stream decode failed; skipping", logx.Err(err), logx.Int("bytes", len(line)))
				continue
			}
			if !ok {
				continue
			}
			s.m.StreamEvent(nil)
			h(ctx, raw)
		}
	}
}

type envelope struct {
	Type string          `json:"type"`
	Push json.RawMessage `json:"push"`
}

var errNoIden = errors.New("push has no iden")

// decodeLine reports ok=false for blank lines and non-push envelopes.
func decodeLine(line []byte) (push.Raw, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return push.Raw{}, false, nil
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return push.Raw{}, false, err
	}
	body := line
	switch {
	case len(env.Push) > 0:
		body = env.Push
	case env.Type == "nop" || env.Type == "tickle":
		return push.Raw{}, false, nil
	}
	var raw push.Raw
	if err := json.Unmarshal(body, &raw); err != nil {
		return push.Raw{}, false, err
	}
	if raw.Iden == "" {
		return push.Raw{}, false, errNoIden
	}
	return raw, true, nil
}
