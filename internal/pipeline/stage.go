package pipeline

// Stage 一次运行的状态：
// Pending -> BuildingAddresses -> FetchingResultPages -> ExtractingArticles -> Normalizing -> Aggregating -> Done，
// 任意阶段遇到整体性错误进入 Failed。
// 多页时 FetchingResultPages / ExtractingArticles / Normalizing 按页循环。
type Stage int

const (
	StagePending Stage = iota
	StageBuildingAddresses
	StageFetchingResultPages
	StageExtractingArticles
	StageNormalizing
	StageAggregating
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StagePending:             "pending",
	StageBuildingAddresses:   "building addresses",
	StageFetchingResultPages: "fetching result pages",
	StageExtractingArticles:  "extracting articles",
	StageNormalizing:         "normalizing",
	StageAggregating:         "aggregating",
	StageDone:                "done",
	StageFailed:              "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
