package capture

import (
	"bytes"
	"context"
	"io"
)

// PlaceholderDevice is a no-hardware device used on headless deployments and
// in tests. It supports audio/webm and serves a fixed payload.
type PlaceholderDevice struct {
	Payload []byte
}

func (d *PlaceholderDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(d.Payload)), nil
}

func (d *PlaceholderDevice) Supports(mimeType string) bool {
	return mimeType == "audio/webm"
}
