package model

import "time"

// JobStatus はスケジュール済みジョブの状態を表す。
type JobStatus string

const (
	// JobStatusPending は実行待ちのジョブ。
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning はワーカーが取得済みで実行中のジョブ。
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted は実行完了したジョブ。
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed は実行に失敗したジョブ。再実行はしない。
	JobStatusFailed JobStatus = "failed"
)

// ScheduledJob はバックグラウンドジョブキューに積まれた遅延実行ジョブ。
// (Hook, Args[メタキー]) の組ごとに保留中ジョブは高々1件とする。
type ScheduledJob struct {
	ID           string
	Hook         string
	Args         map[string]string
	DueAt        time.Time
	Status       JobStatus
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
