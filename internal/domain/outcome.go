package domain

import "time"

// Fetch status constants
const (
	FetchStatusFetched            = "fetched"
	FetchStatusDryRun             = "dry_run"
	FetchStatusSkippedExists      = "skipped_exists"
	FetchStatusSkippedNoReference = "skipped_no_reference"
	FetchStatusFailed             = "failed"
)

// FetchOutcome is the result of running the mirror fetcher for one input file.
// It is built once and not modified afterwards.
type FetchOutcome struct {
	InputFile   string
	Reference   ResultReference
	Destination string
	Status      string
	Result      *MirrorResult
	Err         error
	FinishedAt  time.Time
}

// Skipped returns true if no transfer was attempted
func (o *FetchOutcome) Skipped() bool {
	return o.Status == FetchStatusSkippedExists || o.Status == FetchStatusSkippedNoReference
}

// MirrorResult summarizes one recursive directory mirror
type MirrorResult struct {
	// Directories is the number of listings read, including the base
	Directories int

	// Files is the number of files written, or probed in dry-run mode
	Files int

	// Failed is the number of files whose transfer failed
	Failed int

	// Rejected is the number of links dropped by the reject prefix
	Rejected int

	// BytesWritten is the total bytes written to disk
	BytesWritten int64
}

// ProbeOutcome classifies a status.txt probe
type ProbeOutcome int

const (
	// ProbeComplete means the server answered 2xx for the status file
	ProbeComplete ProbeOutcome = iota

	// ProbePending means the server answered but the status file is not there yet
	ProbePending

	// ProbeError means the probe did not get an HTTP answer at all, so the
	// request state is unknown
	ProbeError
)

func (p ProbeOutcome) String() string {
	switch p {
	case ProbeComplete:
		return "complete"
	case ProbePending:
		return "pending"
	case ProbeError:
		return "error"
	default:
		return "unknown"
	}
}

// ProbeResult is the outcome of probing one reference
type ProbeResult struct {
	Reference  ResultReference
	ProbeURL   string
	Outcome    ProbeOutcome
	StatusCode int
	Err        error
}
