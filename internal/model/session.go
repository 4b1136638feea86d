package model

import (
	"strings"
	"time"
)

// Session holds the learner's questionnaire answers
type Session struct {
	Name         string `json:"name"`
	Age          string `json:"age"`
	Grade        string `json:"grade"`
	Subject      string `json:"subject"`
	Topic        string `json:"topic"`
	CustomTopic  string `json:"customTopic,omitempty"`
	LearningType string `json:"learningType,omitempty"`
	Genre        string `json:"genre"`
}

// ResolvedTopic returns the custom topic when the "other" branch was chosen
func (s Session) ResolvedTopic() string {
	if strings.EqualFold(s.Topic, TopicOther) {
		return s.CustomTopic
	}
	return s.Topic
}

// SongTitle builds the title sent to the music generation service
func (s Session) SongTitle() string {
	return s.Subject + " - " + s.ResolvedTopic() + " Learning Song"
}

// SongFileName is the suggested download name for the finished song
func (s Session) SongFileName() string {
	name := s.Name + "_" + s.Subject + "_" + s.ResolvedTopic() + "_song.mp3"
	return fileNameReplacer.Replace(name)
}

var fileNameReplacer = strings.NewReplacer("/", "-", "\\", "-", " ", "_")

// LyricsResult is the output of one successful lyrics call
type LyricsResult struct {
	Text      string    `json:"text"`
	Session   Session   `json:"session"`
	CreatedAt time.Time `json:"createdAt"`
}

// SongTask tracks one remote song generation job
type SongTask struct {
	TaskID       string     `json:"taskId"`
	AttemptCount int        `json:"attemptCount"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SongResult is the finished song
type SongResult struct {
	AudioURL string `json:"audioUrl"`
	TaskID   string `json:"taskId"`
}
