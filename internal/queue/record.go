package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedResponse is returned when a status line does not carry the
// four expected comma-separated fields.
var ErrMalformedResponse = errors.New("malformed status response")

// ErrJobRejected is returned when the queue's submission response does not
// contain a usable job id.
var ErrJobRejected = errors.New("job rejected by queue")

// StatusRecord is one decoded status response. Empty positional fields
// decode to "not available": an empty string or a nil pointer.
type StatusRecord struct {
	SubmitTime        string
	PreExecExitStatus *int
	TimeInRunning     string
	ExitStatus        *int

	// raw holds the four positional fields exactly as received.
	raw string
}

// Completed reports whether the queue has published an exit status.
func (r StatusRecord) Completed() bool { return r.ExitStatus != nil }

// String returns the record in the queue's positional wire form: the text
// as received for parsed records, a canonical encoding otherwise.
func (r StatusRecord) String() string {
	if r.raw != "" {
		return r.raw
	}
	return strings.Join([]string{
		r.SubmitTime,
		formatOptionalInt(r.PreExecExitStatus),
		r.TimeInRunning,
		formatOptionalInt(r.ExitStatus),
	}, ",")
}

// ParseStatus decodes "submitTime,preExecExitStatus,timeInRunning,exitStatus".
// Fields past the fourth are ignored. Values are trimmed before decoding.
func ParseStatus(line string) (StatusRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return StatusRecord{}, fmt.Errorf("%w: expected 4 fields, got %d in %q", ErrMalformedResponse, len(fields), line)
	}
	raw := strings.Join(fields[:4], ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	preExec, err := parseOptionalInt(fields[1])
	if err != nil {
		return StatusRecord{}, fmt.Errorf("%w: pre-exec exit status %q", ErrMalformedResponse, fields[1])
	}
	exit, err := parseOptionalInt(fields[3])
	if err != nil {
		return StatusRecord{}, fmt.Errorf("%w: exit status %q", ErrMalformedResponse, fields[3])
	}
	return StatusRecord{
		SubmitTime:        fields[0],
		PreExecExitStatus: preExec,
		TimeInRunning:     fields[2],
		ExitStatus:        exit,
		raw:               raw,
	}, nil
}

// ParseSubmitResponse extracts the job id from the queue's submission
// output: the field-th (1-based) token when splitting on commas and
// whitespace. An id equal to invalidID means the queue refused the job.
func ParseSubmitResponse(out string, field int, invalidID string) (string, error) {
	tokens := strings.FieldsFunc(out, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if field < 1 || len(tokens) < field {
		return "", fmt.Errorf("%w: response has %d tokens, job id expected at %d: %q",
			ErrJobRejected, len(tokens), field, strings.TrimSpace(out))
	}
	id := tokens[field-1]
	if id == invalidID {
		return "", fmt.Errorf("%w: %q", ErrJobRejected, strings.TrimSpace(out))
	}
	return id, nil
}

func parseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
