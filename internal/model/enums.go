package model

// Step identifies one stage of the wizard
type Step string

const (
	StepWelcome          Step = "welcome"
	StepName             Step = "name"
	StepAge              Step = "age"
	StepGrade            Step = "grade"
	StepSubject          Step = "subject"
	StepTopic            Step = "topic"
	StepLearningType     Step = "learning_type"
	StepGenre            Step = "genre"
	StepGeneratingLyrics Step = "generating_lyrics"
	StepAwaitingSong     Step = "awaiting_song"
	StepShowResult       Step = "show_result"
)

// CollectionSteps are the steps that gather an answer, in their default order
var CollectionSteps = []Step{
	StepName, StepAge, StepGrade, StepSubject, StepTopic, StepGenre,
}

// IsCollection reports whether the step gathers an answer
func (s Step) IsCollection() bool {
	switch s {
	case StepName, StepAge, StepGrade, StepSubject, StepTopic, StepLearningType, StepGenre:
		return true
	}
	return false
}

// TaskStatus is the status string reported by the music generation service.
// Unrecognised values are kept verbatim.
type TaskStatus string

const (
	TaskStatusPending             TaskStatus = "PENDING"
	TaskStatusTextSuccess         TaskStatus = "TEXT_SUCCESS"
	TaskStatusFirstSuccess        TaskStatus = "FIRST_SUCCESS"
	TaskStatusSuccess             TaskStatus = "SUCCESS"
	TaskStatusCreateTaskFailed    TaskStatus = "CREATE_TASK_FAILED"
	TaskStatusGenerateAudioFailed TaskStatus = "GENERATE_AUDIO_FAILED"
	TaskStatusCallbackException   TaskStatus = "CALLBACK_EXCEPTION"
	TaskStatusSensitiveWordError  TaskStatus = "SENSITIVE_WORD_ERROR"
)

// IsFailure reports whether the status is a terminal failure
func (s TaskStatus) IsFailure() bool {
	switch s {
	case TaskStatusCreateTaskFailed, TaskStatusGenerateAudioFailed, TaskStatusCallbackException, TaskStatusSensitiveWordError:
		return true
	}
	return false
}

// Progress returns the progress percentage shown for a status, and false
// for statuses that carry no progress information.
func (s TaskStatus) Progress() (int, bool) {
	switch s {
	case TaskStatusPending:
		return 25, true
	case TaskStatusTextSuccess:
		return 50, true
	case TaskStatusFirstSuccess:
		return 75, true
	case TaskStatusSuccess:
		return 100, true
	}
	return 0, false
}

// Learning types
const (
	LearningTypeSong       = "song"
	LearningTypeFlashCards = "flash_cards"
)

// TopicOther selects the free-text topic branch
const TopicOther = "other"
