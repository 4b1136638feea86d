package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/model"
)

// rule describes how one collection step is validated and stored
type rule struct {
	question string
	tag      string
	message  string
	assign   func(s *model.Session, value string)
}

var rules = map[model.Step]rule{
	model.StepName: {
		question: "What's your name?",
		tag:      "required,max=50",
		message:  "Please enter your name",
		assign:   func(s *model.Session, v string) { s.Name = v },
	},
	model.StepAge: {
		question: "How old are you?",
		tag:      "required,max=20",
		message:  "Please enter your age",
		assign:   func(s *model.Session, v string) { s.Age = v },
	},
	model.StepGrade: {
		question: "What grade are you in?",
		tag:      "required,max=20",
		message:  "Please enter your grade",
		assign:   func(s *model.Session, v string) { s.Grade = v },
	},
	model.StepSubject: {
		question: "Which subject would you like to learn?",
		tag:      "required,max=100",
		message:  "Please select a subject",
		assign:   func(s *model.Session, v string) { s.Subject = v },
	},
	model.StepTopic: {
		question: "Which topic should the song be about?",
		tag:      "required,max=100",
		message:  "Please select a topic",
		assign:   func(s *model.Session, v string) { s.Topic = v },
	},
	model.StepLearningType: {
		question: "How would you like to learn?",
		tag:      "required,oneof=song",
		message:  "Please select flash cards or song",
		assign:   func(s *model.Session, v string) { s.LearningType = v },
	},
	model.StepGenre: {
		question: "Which music genre do you like?",
		tag:      "required,max=50",
		message:  "Please select a music genre",
		assign:   func(s *model.Session, v string) { s.Genre = v },
	},
}

const customTopicTag = "required,max=200"

var phaseQuestions = map[model.Step]string{
	model.StepWelcome:          "Welcome! Let's make a song to help you learn.",
	model.StepGeneratingLyrics: "Writing your lyrics...",
	model.StepAwaitingSong:     "Composing your song...",
	model.StepShowResult:       "Here is your song!",
}

// requiredSteps must appear in every step configuration
var requiredSteps = []model.Step{
	model.StepName, model.StepAge, model.StepGrade, model.StepSubject, model.StepTopic, model.StepGenre,
}

// ParseSteps turns configured step names into collection steps. Every
// required step must be present exactly once; learning_type is optional.
func ParseSteps(names []string) ([]model.Step, error) {
	if len(names) == 0 {
		return append([]model.Step(nil), model.CollectionSteps...), nil
	}

	seen := make(map[model.Step]bool, len(names))
	steps := make([]model.Step, 0, len(names))
	for _, name := range names {
		step := model.Step(strings.ToLower(strings.TrimSpace(name)))
		if !step.IsCollection() {
			return nil, fmt.Errorf("unknown wizard step %q", name)
		}
		if seen[step] {
			return nil, fmt.Errorf("wizard step %q listed twice", name)
		}
		seen[step] = true
		steps = append(steps, step)
	}

	for _, step := range requiredSteps {
		if !seen[step] {
			return nil, fmt.Errorf("wizard step %q is required", step)
		}
	}
	return steps, nil
}

// validateStep checks one answer and returns the value to store
func validateStep(v *validator.Validate, step model.Step, in model.AdvanceRequest) (value, custom string, err error) {
	r := rules[step]
	value = strings.TrimSpace(in.Value)

	if err := v.Var(value, r.tag); err != nil {
		return "", "", &apperror.ValidationError{Step: string(step), Message: failureMessage(err, r.message)}
	}

	if step == model.StepTopic && strings.EqualFold(value, model.TopicOther) {
		custom = strings.TrimSpace(in.Custom)
		if err := v.Var(custom, customTopicTag); err != nil {
			return "", "", &apperror.ValidationError{Step: string(step), Message: failureMessage(err, "Please enter your topic")}
		}
		value = model.TopicOther
	}

	return value, custom, nil
}

func failureMessage(err error, required string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return required
	}

	switch fe := verrs[0]; fe.Tag() {
	case "max":
		return fmt.Sprintf("Please keep your answer under %s characters", fe.Param())
	case "oneof":
		return "Flash cards are not available yet. Please choose song"
	default:
		return required
	}
}

// answer stores a validated value on the session
func answer(s *model.Session, step model.Step, value, custom string) {
	rules[step].assign(s, value)
	if step == model.StepTopic {
		s.CustomTopic = custom
	}
}

// missingStep returns the first required step whose answer is empty
func missingStep(steps []model.Step, s model.Session) (model.Step, bool) {
	for _, step := range steps {
		var v string
		switch step {
		case model.StepName:
			v = s.Name
		case model.StepAge:
			v = s.Age
		case model.StepGrade:
			v = s.Grade
		case model.StepSubject:
			v = s.Subject
		case model.StepTopic:
			v = s.ResolvedTopic()
		case model.StepLearningType:
			v = s.LearningType
		case model.StepGenre:
			v = s.Genre
		}
		if v == "" {
			return step, true
		}
	}
	return "", false
}
