// Package sse reads the streamed chat reply format: frames separated by a
// blank line, each carrying a "data: " payload, ended by "data: [DONE]".
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	DataPrefix   = "data: "
	DoneSentinel = "[DONE]"

	initialBufferSize = 4 * 1024
	maxFrameSize      = 1024 * 1024
)

var frameSeparator = []byte("\n\n")

var ErrMalformedChunk = errors.New("malformed chunk")

// Event is one data frame
type Event struct {
	Data string
	Done bool
}

// SplitFrames is a bufio.SplitFunc yielding one frame per token. Whatever
// follows the last separator is held until more data arrives; at EOF it is
// dropped since the sender never finished it.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, frameSeparator); i >= 0 {
		return i + len(frameSeparator), data[:i], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// Decoder pulls events off a stream
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
	skipped int
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxFrameSize)
	scanner.Split(SplitFrames)
	return &Decoder{scanner: scanner}
}

// Next returns the next data frame. Frames without the data prefix are
// skipped. After the sentinel has been returned every call yields io.EOF.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}
	for d.scanner.Scan() {
		frame := d.scanner.Text()
		if !strings.HasPrefix(frame, DataPrefix) {
			d.skipped++
			continue
		}
		payload := frame[len(DataPrefix):]
		if strings.TrimSpace(payload) == DoneSentinel {
			d.done = true
			return Event{Done: true}, nil
		}
		return Event{Data: payload}, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Skipped counts frames dropped for lacking the data prefix
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Chunk is the payload of a data frame
type Chunk struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Delta Delta `json:"delta"`
}

type Delta struct {
	Content string `json:"content"`
}

// Content extracts choices[0].delta.content from a frame payload.
// A well formed chunk without content yields "".
func Content(payload string) (string, error) {
	var chunk Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// WriteContent emits one fragment in the same framing
func WriteContent(w io.Writer, content string) error {
	chunk := Chunk{Choices: []Choice{{Delta: Delta{Content: content}}}}
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", DataPrefix, data)
	return err
}

// WriteDone emits the terminating sentinel
func WriteDone(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s%s\n\n", DataPrefix, DoneSentinel)
	return err
}
