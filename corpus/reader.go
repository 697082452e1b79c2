package corpus

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sequence is one corpus sequence: for every stream, the one-hot index of
// each occurrence of that stream's field, in line order. For ATIS, query and
// slot_labels carry one entry per token and intent_labels a single entry.
type Sequence struct {
	ID      int64
	Streams map[string][]int32
}

// numSamples is the sample count a sequence contributes to a minibatch:
// the length of its longest stream (the per-token streams).
func (s *Sequence) numSamples() int {
	max := 0
	for _, idxs := range s.Streams {
		if len(idxs) > max {
			max = len(idxs)
		}
	}
	return max
}

// ReadCorpus parses a CTF corpus file into sequences according to the stream
// definitions. Any malformed line, unknown numeric field behaviour or
// out-of-range sparse index is a fatal parse error.
func ReadCorpus(path string, defs StreamDefs) ([]Sequence, error) {
	if err := defs.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	byField := defs.byField()

	var sequences []Sequence
	var current *Sequence
	haveCurrent := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		chunks := strings.Split(line, "|")
		head := strings.TrimSpace(chunks[0])

		// A sequence ID before the first field groups consecutive lines into
		// one sequence. A line without an ID continues the previous sequence.
		if head != "" {
			id, err := strconv.ParseInt(head, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid sequence id %q", path, lineNo, head)
			}
			if !haveCurrent || current.ID != id {
				if haveCurrent {
					sequences = append(sequences, *current)
				}
				current = &Sequence{ID: id, Streams: make(map[string][]int32, len(defs))}
				haveCurrent = true
			}
		} else if !haveCurrent {
			return nil, fmt.Errorf("%s:%d: line has no sequence id and no preceding sequence", path, lineNo)
		}

		for _, chunk := range chunks[1:] {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			parts := strings.Fields(chunk)
			field := parts[0]
			if field == "#" {
				// Comment field, e.g. "|# BOS".
				continue
			}
			def, ok := byField[field]
			if !ok {
				// Fields outside the declared schema are ignored, matching a
				// deserializer configured with an explicit stream subset.
				continue
			}
			for _, pair := range parts[1:] {
				idx, err := parseSparseEntry(pair, def.Width)
				if err != nil {
					return nil, fmt.Errorf("%s:%d: field %s: %w", path, lineNo, field, err)
				}
				current.Streams[def.Name] = append(current.Streams[def.Name], idx)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if haveCurrent {
		sequences = append(sequences, *current)
	}
	if len(sequences) == 0 {
		return nil, fmt.Errorf("corpus %s contains no sequences", path)
	}
	return sequences, nil
}

// parseSparseEntry parses one "index:value" pair of a sparse one-hot stream.
func parseSparseEntry(pair string, width int) (int32, error) {
	idxStr, valStr, found := strings.Cut(pair, ":")
	if !found {
		return 0, fmt.Errorf("malformed sparse entry %q", pair)
	}
	idx, err := strconv.ParseInt(idxStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed sparse index %q", idxStr)
	}
	if idx < 0 || int(idx) >= width {
		return 0, fmt.Errorf("sparse index %d out of range for width %d", idx, width)
	}
	val, err := strconv.ParseFloat(valStr, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed sparse value %q", valStr)
	}
	if val != 1 {
		return 0, fmt.Errorf("one-hot stream requires value 1, got %v", val)
	}
	return int32(idx), nil
}
