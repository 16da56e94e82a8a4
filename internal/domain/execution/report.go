package execution

// ReportKind distinguishes build reports from run reports.
type ReportKind string

const (
	ReportBuild ReportKind = "build"
	ReportRun   ReportKind = "run"
)

// Report captures the outcome of a build or a run for external consumers.
type Report struct {
	RequestID string
	Kind      ReportKind
	Build     *BuildResult
	Exit      *RunExit
	// Output holds the merged program output of headless runs.
	Output []string
	Err    error
}
