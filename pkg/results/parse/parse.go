// Package parse converts raw simulation result text into results.Run values.
// Two line-oriented formats are supported: scalar files carrying one value per
// entity/metric plus itervar/attr run metadata, and vector files carrying
// declared time series channels with tab or space separated sample lines. Both
// families are handled by one keyword-dispatch grammar, so mixed files and
// concatenations of well-formed files parse into the union of their runs.
package parse

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/simsift/simsift/pkg/results"
	"github.com/simsift/simsift/pkg/utils/errcollection"
)

// Diagnostic records one dropped line: a recognized keyword whose fields could
// not be parsed. Unrecognized line shapes are skipped without a diagnostic.
type Diagnostic struct {
	File   string
	Line   int
	Reason string
}

// Result is the outcome of parsing one or more files. Partial success is the
// default mode: malformed lines land in Diagnostics while well-formed runs are
// still returned.
type Result struct {
	Runs        []results.Run
	Diagnostics []Diagnostic
}

// File parses the result file from the given path.
func File(path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()
	return Parse(file, path)
}

// lineHandler consumes the fields of one recognized line. It returns a reason
// string when the line had to be dropped.
type lineHandler func(p *parser, fields []string) (reason string)

var handlers = map[string]lineHandler{
	"run":     (*parser).handleRun,
	"itervar": (*parser).handleItervar,
	"attr":    (*parser).handleAttr,
	"scalar":  (*parser).handleScalar,
	"vector":  (*parser).handleVector,
}

// Parse reads result lines from the reader. The source string identifies the
// input (typically a file path) in diagnostics and in runs that carry no
// factor metadata.
func Parse(reader io.Reader, source string) (Result, error) {
	p := newParser(source)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		keyword := fields[0]

		handler, ok := handlers[keyword]
		if !ok {
			// Data lines of vector channels start with the numeric channel id.
			if _, err := strconv.Atoi(keyword); err == nil {
				handler = (*parser).handleVectorData
			} else {
				// Unrecognized line shape, skip and continue.
				continue
			}
		}

		if reason := handler(p, fields); reason != "" {
			log.Debugf("parse: %s:%d dropped: %s", source, lineNo, reason)
			p.diagnostics = append(p.diagnostics, Diagnostic{
				File:   source,
				Line:   lineNo,
				Reason: reason,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, err
	}

	runs := p.finish()
	if err := duplicateIdentities(runs, source); err != nil {
		return Result{}, err
	}

	return Result{Runs: runs, Diagnostics: p.diagnostics}, nil
}

// duplicateIdentities rejects a parse whose runs collide on identity. A
// repeated configuration and replication pair inside one file would silently
// double every aggregate computed from it, so all collisions are reported as
// one hard error.
func duplicateIdentities(runs []results.Run, source string) error {
	var collisions errcollection.ErrorCollection

	seen := map[string]bool{}
	for _, run := range runs {
		identity := run.Identity()
		if seen[identity] {
			collisions.Add(errors.Errorf("duplicate run %q parsed from %q", identity, source))
		}
		seen[identity] = true
	}
	return collisions.GetErrIfAny()
}

// parser accumulates the current run while dispatching lines. A new run opens
// on a "run" line, on metadata arriving after scalar data, or on the
// re-declaration of an already known vector channel id. Those are the run
// boundaries produced by concatenating well-formed result files.
type parser struct {
	source      string
	diagnostics []Diagnostic

	runs    []results.Run
	current results.Run
	dirty   bool

	seenScalar    bool
	repetitionSet bool
	channels      map[int]results.MetricKey
	lastTime      map[int]float64
}

func newParser(source string) *parser {
	return &parser{
		source:   source,
		current:  results.NewRun(source),
		channels: map[int]results.MetricKey{},
		lastTime: map[int]float64{},
	}
}

func (p *parser) beginRun() {
	if p.dirty {
		p.current.Sequence = len(p.runs)
		p.runs = append(p.runs, p.current)
	}
	p.current = results.NewRun(p.source)
	p.dirty = false
	p.seenScalar = false
	p.repetitionSet = false
	p.channels = map[int]results.MetricKey{}
	p.lastTime = map[int]float64{}
}

func (p *parser) finish() []results.Run {
	if p.dirty {
		p.current.Sequence = len(p.runs)
		p.runs = append(p.runs, p.current)
		p.dirty = false
	}
	return p.runs
}

func (p *parser) handleRun(fields []string) string {
	if len(fields) < 2 {
		return "run line without label"
	}
	p.beginRun()
	p.current.Label = fields[1]
	p.dirty = true
	return ""
}

func (p *parser) handleItervar(fields []string) string {
	if len(fields) < 3 {
		return "itervar line with too few tokens"
	}
	name, value := fields[1], fields[2]

	// Metadata after scalar data means a new run block has started
	// (concatenated files); so does a repeated factor definition.
	_, redefined := p.current.Factors[name]
	if p.seenScalar || redefined {
		p.beginRun()
	}

	p.current.Factors[name] = value
	p.dirty = true
	return ""
}

func (p *parser) handleAttr(fields []string) string {
	if len(fields) < 3 {
		return "attr line with too few tokens"
	}
	key, value := fields[1], fields[2]

	switch results.Normalize(key) {
	case "repetition", "replication":
		index, err := strconv.Atoi(strings.TrimPrefix(value, "#"))
		if err != nil {
			return "attr " + key + " with non-integer value " + strconv.Quote(value)
		}
		if index < 0 {
			return "attr " + key + " with negative value " + strconv.Quote(value)
		}
		if p.seenScalar || p.repetitionSet {
			p.beginRun()
		}
		p.current.Replication = index
		p.repetitionSet = true
		p.dirty = true
	default:
		// Other attributes are run metadata we do not model.
	}
	return ""
}

func (p *parser) handleScalar(fields []string) string {
	if len(fields) < 4 {
		return "scalar line with too few tokens"
	}

	key, ok := parseEntityPath(fields[1], fields[2])
	if !ok {
		return "scalar line with malformed entity path " + strconv.Quote(fields[1])
	}

	value, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return "scalar value " + strconv.Quote(fields[3]) + " is not a number"
	}

	p.current.Scalars[key] = value
	p.seenScalar = true
	p.dirty = true
	return ""
}

func (p *parser) handleVector(fields []string) string {
	if len(fields) < 4 {
		return "vector declaration with too few tokens"
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return "vector id " + strconv.Quote(fields[1]) + " is not an integer"
	}

	metric := strings.TrimSuffix(fields[3], ":vector")
	key, ok := parseEntityPath(fields[2], metric)
	if !ok {
		return "vector declaration with malformed entity path " + strconv.Quote(fields[2])
	}

	// Re-declaring a known channel id marks the start of the next run when
	// vector files are concatenated.
	if _, declared := p.channels[id]; declared {
		p.beginRun()
	}

	p.channels[id] = key
	p.dirty = true
	return ""
}

func (p *parser) handleVectorData(fields []string) string {
	if len(fields) < 4 {
		return "vector data line with too few tokens"
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return "vector data id " + strconv.Quote(fields[0]) + " is not an integer"
	}

	key, declared := p.channels[id]
	if !declared {
		// Data for an undeclared channel is skipped, not fatal.
		return ""
	}

	time, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return "vector sample time " + strconv.Quote(fields[2]) + " is not a number"
	}
	value, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return "vector sample value " + strconv.Quote(fields[3]) + " is not a number"
	}

	// Times within a channel must be non-decreasing; a sample running
	// backwards is dropped so downstream series keep the ordering invariant.
	if last, recorded := p.lastTime[id]; recorded && time < last {
		return "vector sample time " + strconv.Quote(fields[2]) + " is out of order"
	}
	p.lastTime[id] = time

	p.current.Vectors[key] = append(p.current.Vectors[key], results.Sample{
		Time:  time,
		Value: value,
	})
	p.dirty = true
	return ""
}

// parseEntityPath splits an entity path like "Network.table[3]" into the
// normalized entity class and instance index used in metric keys. Paths
// without a bracketed index map to index 0.
func parseEntityPath(path string, metric string) (results.MetricKey, bool) {
	segment := path
	if dot := strings.LastIndex(path, "."); dot >= 0 {
		segment = path[dot+1:]
	}
	if segment == "" {
		return results.MetricKey{}, false
	}

	index := 0
	open := strings.Index(segment, "[")
	if open >= 0 {
		end := strings.Index(segment, "]")
		if end < open {
			return results.MetricKey{}, false
		}
		parsed, err := strconv.Atoi(segment[open+1 : end])
		if err != nil || parsed < 0 {
			return results.MetricKey{}, false
		}
		index = parsed
		segment = segment[:open]
	}
	if segment == "" {
		return results.MetricKey{}, false
	}

	return results.NewMetricKey(segment, index, metric), true
}
