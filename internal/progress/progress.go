// Package progress extracts solver iteration progress from a job log.
package progress

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// iterationRE matches the solver's progress lines, e.g.
// "Iteration  = 45 of 200". Spacing around '=' varies between solver builds.
var iterationRE = regexp.MustCompile(`\bIteration\s*=`)

const maxLineSize = 1024 * 1024

// Snapshot is the last progress line seen in a log.
type Snapshot struct {
	Current int
	Total   int
}

// Percent is the snapshot's completion, rounded half up and clamped to
// [0, 100]. A non-positive total counts as no progress.
func (s Snapshot) Percent() int {
	if s.Total <= 0 || s.Current <= 0 {
		return 0
	}
	p := (200*s.Current + s.Total) / (2 * s.Total)
	if p > 100 {
		return 100
	}
	return p
}

// Read returns the last progress snapshot in the log at path. ok is false
// when the file is missing or unreadable, or holds no parsable progress line.
func Read(path string) (Snapshot, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, false
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if iterationRE.MatchString(line) {
			last = line
		}
	}
	// A partially written trailing line or an oversized line still leaves
	// the last complete match usable.
	if last == "" {
		return Snapshot{}, false
	}
	return parseLine(last)
}

// Percent returns the job's completion percentage from its log, 0 when
// nothing can be determined.
func Percent(path string) int {
	snap, ok := Read(path)
	if !ok {
		return 0
	}
	return snap.Percent()
}

// parseLine reads the third and fifth whitespace-separated tokens of a line
// normalized to "Iteration = <cur> <word> <total>".
func parseLine(line string) (Snapshot, bool) {
	loc := iterationRE.FindStringIndex(line)
	normalized := "Iteration = " + line[loc[1]:]
	fields := strings.Fields(normalized)
	if len(fields) < 5 {
		return Snapshot{}, false
	}
	cur, err := strconv.Atoi(fields[2])
	if err != nil {
		return Snapshot{}, false
	}
	total, err := strconv.Atoi(fields[4])
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{Current: cur, Total: total}, true
}
