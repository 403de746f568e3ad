// Package capture wraps the platform audio input device. A Recorder opens a
// capture stream, accumulates audio chunks in arrival order and finalizes
// them into a single Recording when stopped. Only one recording may be in
// flight at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Capture failure reasons reported by the platform device.
var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrNoDevice         = errors.New("no microphone detected")
	ErrUnsupported      = errors.New("audio recording not supported on this platform")

	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// codecPreference is the ordered list of codecs tried when opening a device.
// The first one the device reports as supported wins.
var codecPreference = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/wav",
	"audio/ogg;codecs=opus",
	"audio/ogg",
}

// DefaultMIMEType is used when the device supports none of the preferred codecs.
const DefaultMIMEType = "audio/webm"

// Stream is a live audio capture session. Close releases the device.
type Stream interface {
	io.ReadCloser
}

// Device opens capture streams and reports codec support.
type Device interface {
	// Open starts capturing. It fails with ErrPermissionDenied, ErrNoDevice
	// or ErrUnsupported depending on the platform denial reason.
	Open(ctx context.Context) (Stream, error)
	// Supports reports whether the device can encode the given MIME type.
	Supports(mimeType string) bool
}

// Recording is a finalized audio payload tagged with its codec.
type Recording struct {
	MIMEType string
	Data     []byte
}

// SelectMIMEType returns the first codec from the preference list the device
// supports, falling back to DefaultMIMEType.
func SelectMIMEType(dev Device) string {
	for _, t := range codecPreference {
		if dev.Supports(t) {
			return t
		}
	}
	return DefaultMIMEType
}

const readChunkSize = 4096

// Recorder accumulates audio chunks from a Device between Start and Stop.
type Recorder struct {
	dev Device

	mu        sync.Mutex
	recording bool
	mimeType  string
	stream    Stream
	chunks    [][]byte
	done      chan struct{}
	readErr   error
}

// NewRecorder creates a Recorder over the given device.
func NewRecorder(dev Device) *Recorder {
	return &Recorder{dev: dev}
}

// Recording reports whether a capture is currently in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start requests the capture device and begins accumulating chunks. A second
// Start while a recording is in flight fails with ErrAlreadyRecording.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.recording = true
	r.mu.Unlock()

	stream, err := r.dev.Open(ctx)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("open capture device: %w", err)
	}

	r.mu.Lock()
	r.stream = stream
	r.mimeType = SelectMIMEType(r.dev)
	r.chunks = nil
	r.readErr = nil
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.accumulate(stream, r.done)
	return nil
}

// accumulate reads chunks off the stream until it is closed or drained.
func (r *Recorder) accumulate(stream Stream, done chan struct{}) {
	defer close(done)
	for {
		buf := make([]byte, readChunkSize)
		n, err := stream.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.chunks = append(r.chunks, buf[:n])
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.mu.Lock()
				r.readErr = err
				r.mu.Unlock()
			}
			return
		}
	}
}

// Stop releases the capture device unconditionally and finalizes the
// accumulated chunks into a single Recording tagged with the selected codec.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	// Release the device first so the reader drains and exits.
	closeErr := stream.Close()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.stream = nil

	if r.readErr != nil {
		return nil, fmt.Errorf("capture stream: %w", r.readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("release capture device: %w", closeErr)
	}

	total := 0
	for _, c := range r.chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	r.chunks = nil

	return &Recording{MIMEType: r.mimeType, Data: data}, nil
}
