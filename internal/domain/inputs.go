package domain

type AssignInput struct {
	Responsible string
	EndUser     string
	Reason      Reason
	Note        string
	Actor       string
}

type ReleaseInput struct {
	Reason Reason
	Note   string
	Actor  string
}

type RequestIPInput struct {
	Responsible string
	EndUser     string
	MAC         string
	Note        string
	Actor       string
}

type SweepExpiredInput struct {
	ThresholdDays int
	DryRun        bool
	Actor         string
}
