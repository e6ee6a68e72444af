package domain

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Europe/London must resolve in minimal images.
)

// DueDateLayout is the assessment_period_end format, e.g. "31 March 2026 11:59pm".
const DueDateLayout = "2 January 2006 3:04pm"

// Configuration describes one assessment period. Exactly one is the default.
type Configuration struct {
	ID         int64
	Name       string
	IsDefault  bool
	ConfigData ConfigData
	CreatedAt  time.Time
}

// ConfigData is stored as JSON in config_data.
type ConfigData struct {
	CurrentAssessmentPeriod string `json:"current_assessment_period"`
	AssessmentPeriodEnd     string `json:"assessment_period_end"`
	DefaultFramework        string `json:"default_framework"`
}

// CurrentAssessmentPeriod returns the period key, e.g. "2025/26".
func (c Configuration) CurrentAssessmentPeriod() string {
	return c.ConfigData.CurrentAssessmentPeriod
}

// DefaultFramework returns the framework new assessments use.
func (c Configuration) DefaultFramework() string {
	return c.ConfigData.DefaultFramework
}

// SubmissionDueDate parses assessment_period_end as UK local time.
func (c Configuration) SubmissionDueDate() (time.Time, error) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.Time{}, fmt.Errorf("load Europe/London: %w", err)
	}
	// "11:59PM" and "11:59pm" are both accepted.
	raw := strings.TrimSpace(c.ConfigData.AssessmentPeriodEnd)
	raw = strings.Replace(strings.Replace(raw, "PM", "pm", 1), "AM", "am", 1)
	due, err := time.ParseInLocation(DueDateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse assessment_period_end %q: %w", c.ConfigData.AssessmentPeriodEnd, err)
	}
	return due, nil
}
