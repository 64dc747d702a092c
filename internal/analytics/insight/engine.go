package insight

// Package insight turns the latest sample of a dataset into short
// rule-based observations.
//
// Rules run in a fixed category order: heart, oxygen, activity, sleep,
// stress. Within a category the first matching rule wins, so each category
// contributes at most one insight. Means are taken over the whole dataset,
// latest sample included.

import (
	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

// Category groups insights by vital sign.
type Category string

const (
	CategoryHeart    Category = "heart"
	CategoryOxygen   Category = "oxygen"
	CategoryActivity Category = "activity"
	CategorySleep    Category = "sleep"
	CategoryStress   Category = "stress"
)

// Categories lists categories in evaluation order.
var Categories = []Category{CategoryHeart, CategoryOxygen, CategoryActivity, CategorySleep, CategoryStress}

// Kind is the tone of an insight.
type Kind string

const (
	KindWarning Kind = "warning"
	KindPraise  Kind = "praise"
	KindNudge   Kind = "nudge"
	KindInfo    Kind = "info"
)

// Insight is one textual observation.
type Insight struct {
	Category Category `json:"category" yaml:"category"`
	Kind     Kind     `json:"kind" yaml:"kind"`
	Message  string   `json:"message" yaml:"message"`
}

// Rule thresholds.
const (
	HeartElevatedMargin = 20.0
	HeartRestingMargin  = 15.0
	OxygenLowThreshold  = 95.0
	ActivityLowFactor   = 0.7
	ActivityHighFactor  = 1.3
	SleepPoorThreshold  = 6.0
	SleepGreatThreshold = 8.0
	StressHighThreshold = 7.0
	StressCalmThreshold = 4.0
)

type rule struct {
	kind    Kind
	message string
	match   func(latest models.Sample, mean models.Means) bool
}

var rules = map[Category][]rule{
	CategoryHeart: {
		{KindWarning, "Your heart rate is elevated. Consider relaxation techniques.", func(s models.Sample, m models.Means) bool {
			return float64(s.HeartRate) > m.HeartRate+HeartElevatedMargin
		}},
		{KindPraise, "Your resting heart rate looks great!", func(s models.Sample, m models.Means) bool {
			return float64(s.HeartRate) < m.HeartRate-HeartRestingMargin
		}},
	},
	CategoryOxygen: {
		{KindWarning, "Blood oxygen is low. Consider consulting a healthcare provider.", func(s models.Sample, _ models.Means) bool {
			return s.BloodOxygen < OxygenLowThreshold
		}},
		{KindInfo, "Blood oxygen levels are healthy.", func(models.Sample, models.Means) bool {
			return true
		}},
	},
	CategoryActivity: {
		{KindNudge, "You've been less active today. Try a short walk!", func(s models.Sample, m models.Means) bool {
			return float64(s.Steps) < m.Steps*ActivityLowFactor
		}},
		{KindPraise, "Great job staying active today!", func(s models.Sample, m models.Means) bool {
			return float64(s.Steps) > m.Steps*ActivityHighFactor
		}},
	},
	CategorySleep: {
		{KindNudge, "Sleep quality could be better. Try a consistent bedtime routine.", func(s models.Sample, _ models.Means) bool {
			return s.SleepQuality < SleepPoorThreshold
		}},
		{KindPraise, "Excellent sleep quality! Keep it up!", func(s models.Sample, _ models.Means) bool {
			return s.SleepQuality > SleepGreatThreshold
		}},
	},
	CategoryStress: {
		{KindWarning, "Stress levels are high. Practice deep breathing or meditation.", func(s models.Sample, _ models.Means) bool {
			return s.StressLevel > StressHighThreshold
		}},
		{KindPraise, "Great job managing stress!", func(s models.Sample, _ models.Means) bool {
			return s.StressLevel < StressCalmThreshold
		}},
	},
}

// Evaluate returns the insights for the dataset's latest sample in category order.
func Evaluate(ds *models.Dataset) ([]Insight, error) {
	latest, err := ds.Latest()
	if err != nil {
		return nil, err
	}
	mean := ds.Means()

	insights := make([]Insight, 0, len(Categories))
	for _, c := range Categories {
		for _, r := range rules[c] {
			if r.match(latest, mean) {
				insights = append(insights, Insight{Category: c, Kind: r.kind, Message: r.message})
				break
			}
		}
	}
	return insights, nil
}

// Messages flattens insights to their display strings.
func Messages(insights []Insight) []string {
	out := make([]string, len(insights))
	for i, in := range insights {
		out[i] = in.Message
	}
	return out
}
