package model

// CIState is the per-commit CI verdict shown on the dashboard.
type CIState string

const (
	CINone    CIState = "NONE"
	CISuccess CIState = "SUCCESS"
	CIFailure CIState = "FAILURE"
	CIError   CIState = "ERROR"
	CIPending CIState = "PENDING"
)

// Failed reports FAILURE or ERROR.
func (s CIState) Failed() bool {
	return s == CIFailure || s == CIError
}

// FailedCheck is a check run that concluded with "failure".
type FailedCheck struct {
	Name string
	Link string
}

// CIStatus is rebuilt on every refresh and never persisted.
// FailedChecks is only populated when State.Failed().
type CIStatus struct {
	State        CIState
	FailedChecks []FailedCheck
}

// RollupToCI maps GitHub's statusCheckRollup state to a CIState.
func RollupToCI(rollup string) CIState {
	switch rollup {
	case "SUCCESS":
		return CISuccess
	case "PENDING":
		return CIPending
	case "FAILURE":
		return CIFailure
	case "ERROR":
		return CIError
	default:
		return CINone
	}
}

// CheckRun is a completed check run on a commit.
type CheckRun struct {
	Name       string
	Conclusion string // "success", "failure", "cancelled", "skipped", ...
	Link       string
}

// WorkflowRun is an Actions workflow run triggered for a commit.
type WorkflowRun struct {
	ID         int64
	Name       string
	Conclusion string
}
