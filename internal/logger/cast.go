// Package logger records command runs as asciinema v2 casts.
package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Default terminal geometry written into cast headers.
const (
	DefaultWidth  = 120
	DefaultHeight = 40
)

// CastHeader is the first line of an asciinema v2 recording.
type CastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Command   string            `json:"command,omitempty"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// CastEvent is one recorded event, serialized as [offset, type, data].
// Types: "o" output, "i" input, "m" marker.
type CastEvent struct {
	Offset float64
	Type   string
	Data   string
}

func (e CastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Offset, e.Type, e.Data})
}

func (e *CastEvent) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return errors.New("invalid event offset")
	}
	typ, ok := arr[1].(string)
	if !ok {
		return errors.New("invalid event type")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return errors.New("invalid event data")
	}

	e.Offset, e.Type, e.Data = offset, typ, payload
	return nil
}

// Recorder writes a cast for a single command run. Write records output
// events, so a Recorder can be attached to a command's stdout and stderr.
type Recorder struct {
	mu        sync.Mutex
	w         io.Writer
	file      *os.File
	path      string
	startTime time.Time
	err       error
}

// Create opens a cast file at path and writes its header.
func Create(path string, header CastHeader) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create cast file")
	}

	r := newRecorder(file, header)
	r.file = file
	r.path = path
	if r.err != nil {
		file.Close()
		return nil, r.err
	}
	return r, nil
}

// NewRecorder writes a cast to w. The caller owns w.
func NewRecorder(w io.Writer, header CastHeader) (*Recorder, error) {
	r := newRecorder(w, header)
	return r, r.err
}

func newRecorder(w io.Writer, header CastHeader) *Recorder {
	r := &Recorder{w: w, startTime: time.Now()}

	header.Version = 2
	if header.Width == 0 {
		header.Width = DefaultWidth
	}
	if header.Height == 0 {
		header.Height = DefaultHeight
	}
	header.Timestamp = r.startTime.Unix()

	r.writeLine(header)
	return r
}

// Path returns the cast file path, empty for writer-backed recorders.
func (r *Recorder) Path() string {
	return r.path
}

// Write records p as an output event. It always reports len(p) so a failing
// recording never breaks the command it observes; the first error is kept
// and returned by Close.
func (r *Recorder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.event("o", string(p))
	return len(p), nil
}

// Input records an input event, typically the command line itself.
func (r *Recorder) Input(data string) {
	r.event("i", data)
}

// Marker records a marker event.
func (r *Recorder) Marker(label string) {
	r.event("m", label)
}

func (r *Recorder) event(typ, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(CastEvent{
		Offset: time.Since(r.startTime).Seconds(),
		Type:   typ,
		Data:   data,
	})
}

// writeLine expects r.mu to be held, or the recorder to be unpublished.
func (r *Recorder) writeLine(v any) {
	if r.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.err = errors.Wrap(err, "marshal cast line")
		return
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		r.err = errors.Wrap(err, "write cast line")
	}
}

// Close closes the cast file, if the recorder owns one, and returns the
// first write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.file.Close(); err != nil && r.err == nil {
			r.err = errors.Wrap(err, "close cast file")
		}
		r.file = nil
	}
	return r.err
}

// ReadCast parses a cast into its header and events.
func ReadCast(rd io.Reader) (CastHeader, []CastEvent, error) {
	var header CastHeader
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return header, nil, errors.Wrap(err, "read cast header")
		}
		return header, nil, errors.New("empty cast")
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return header, nil, errors.Wrap(err, "parse cast header")
	}

	var events []CastEvent
	for scanner.Scan() {
		var ev CastEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return header, events, errors.Wrap(err, "parse cast event")
		}
		events = append(events, ev)
	}
	return header, events, errors.Wrap(scanner.Err(), "read cast")
}
