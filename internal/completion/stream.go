package completion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

type relayState int

const (
	stateStreaming relayState = iota
	stateBuffered
)

const readChunkSize = 4096

// lineSplitter turns an arbitrary sequence of byte chunks into complete lines.
// A line that is not yet terminated stays pending until the next push.
type lineSplitter struct {
	pending []byte
}

func (s *lineSplitter) push(chunk []byte) []string {
	s.pending = append(s.pending, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(string(s.pending[:i]), "\r"))
		s.pending = s.pending[i+1:]
	}
	return lines
}

// flush returns the unterminated remainder, if any.
func (s *lineSplitter) flush() string {
	rest := strings.TrimRight(string(s.pending), "\r")
	s.pending = nil
	return rest
}

// relay consumes server-sent events and forwards delta text. It starts in
// stateStreaming and moves to stateBuffered once maxParseErrors data lines
// failed to decode; from then on nothing more is read or forwarded.
type relay struct {
	state          relayState
	splitter       lineSplitter
	onDelta        func(string) error
	maxParseErrors int

	parseErrors int
	forwarded   bool
	done        bool
	content     strings.Builder
	sources     []string
	readErr     error
}

func newRelay(onDelta func(string) error, maxParseErrors int) *relay {
	return &relay{
		state:          stateStreaming,
		onDelta:        onDelta,
		maxParseErrors: maxParseErrors,
	}
}

// consume reads body until EOF, [DONE], a read failure or the buffered
// transition. Only errors from onDelta are returned; read failures are kept
// in readErr so the caller can decide to fall back.
func (r *relay) consume(body io.Reader) error {
	buf := make([]byte, readChunkSize)
	for r.state == stateStreaming && !r.done {
		n, err := body.Read(buf)
		if n > 0 {
			if ferr := r.feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return r.finish()
		}
		if err != nil {
			r.readErr = err
			return nil
		}
	}
	return nil
}

func (r *relay) feed(chunk []byte) error {
	for _, line := range r.splitter.push(chunk) {
		if err := r.handleLine(line); err != nil {
			return err
		}
		if r.state != stateStreaming || r.done {
			return nil
		}
	}
	return nil
}

func (r *relay) finish() error {
	if rest := r.splitter.flush(); rest != "" && r.state == stateStreaming && !r.done {
		return r.handleLine(rest)
	}
	return nil
}

func (r *relay) handleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return nil
	}
	// event:, id: and retry: fields carry nothing the relay needs.
	if !strings.HasPrefix(line, "data:") {
		return nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		r.done = true
		return nil
	}

	var chunk chatResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		r.parseErrors++
		if r.parseErrors >= r.maxParseErrors {
			r.state = stateBuffered
		}
		return nil
	}

	if len(chunk.Citations) > 0 {
		r.sources = chunk.Citations
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta.Content
	if delta == "" {
		return nil
	}
	r.content.WriteString(delta)
	r.forwarded = true
	return r.onDelta(delta)
}
