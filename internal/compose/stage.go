package compose

// Stage is a step of a pipeline run. Runs only ever move forward.
type Stage int

const (
	StageValidating Stage = iota
	StageFetchingAssets
	StageComposing
	StagePublishing
	StageUpdating
	StageDone
)

var stageNames = [...]string{
	StageValidating:     "validating",
	StageFetchingAssets: "fetching_assets",
	StageComposing:      "composing",
	StagePublishing:     "publishing",
	StageUpdating:       "updating",
	StageDone:           "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
