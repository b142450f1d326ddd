package domain

import (
	"github.com/yungbote/conductor-backend/internal/domain/tasks"
)

type Task = tasks.Task
type TaskStatus = tasks.TaskStatus
type Stage = tasks.Stage
type StageOutput = tasks.StageOutput
type TaskAttempt = tasks.TaskAttempt

const (
	StatusTodo       = tasks.StatusTodo
	StatusInProgress = tasks.StatusInProgress
	StatusDone       = tasks.StatusDone

	StagePending        = tasks.StagePending
	StageSpecification  = tasks.StageSpecification
	StageImplementation = tasks.StageImplementation
	StageReviewQa       = tasks.StageReviewQa
	StageCompleted      = tasks.StageCompleted
)

var (
	ParseStage       = tasks.ParseStage
	InvalidatedBy    = tasks.InvalidatedBy
	ExecutableStages = tasks.ExecutableStages
)
