package domain

// maxRecentErrors bounds the per-batch error detail kept alongside the
// counters; everything beyond it is still counted.
const maxRecentErrors = 20

// ReconcileResult summarizes one discovery batch from one source.
type ReconcileResult struct {
	Source       string
	Created      int
	Updated      int
	Errors       int
	RecentErrors []string
}

func (r *ReconcileResult) addError(msg string) {
	r.Errors++
	if len(r.RecentErrors) < maxRecentErrors {
		r.RecentErrors = append(r.RecentErrors, msg)
	}
}

// SweepResult summarizes an inactivity sweep over the active records.
type SweepResult struct {
	Checked      int
	Deactivated  int
	Errors       int
	Skipped      int
	RecentErrors []string
}

func (r *SweepResult) addError(msg string) {
	r.Errors++
	if len(r.RecentErrors) < maxRecentErrors {
		r.RecentErrors = append(r.RecentErrors, msg)
	}
}

// ReleaseSweepResult summarizes an expiry sweep over in-use records.
type ReleaseSweepResult struct {
	Checked      int
	Released     int
	Errors       int
	Skipped      int
	RecentErrors []string
}

func (r *ReleaseSweepResult) addError(msg string) {
	r.Errors++
	if len(r.RecentErrors) < maxRecentErrors {
		r.RecentErrors = append(r.RecentErrors, msg)
	}
}

// ReassignResult classifies every record checked by a full VLAN
// reconciliation pass.
type ReassignResult struct {
	Checked        int
	AlreadyCorrect int
	NewlyAssigned  int
	Corrected      int
	NoMatch        int
	Errors         int
	RecentErrors   []string
}

func (r *ReassignResult) addError(msg string) {
	r.Errors++
	if len(r.RecentErrors) < maxRecentErrors {
		r.RecentErrors = append(r.RecentErrors, msg)
	}
}
