package chatbot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PairSource records where a Q&A pair came from.
type PairSource string

const (
	SourceManual PairSource = "manual"
	SourceCSV    PairSource = "csv"
)

var (
	ErrURLRequired    = errors.New("website url is required")
	ErrPairsRequired  = errors.New("at least one question and answer pair is required")
	ErrIncompletePair = errors.New("every pair needs a question and an answer")
)

// QAPair is a question with its canonical answer.
type QAPair struct {
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	Source   PairSource `json:"source"`
}

// Website is a crawled page reduced to plain text.
type Website struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Dataset is the training material of one chatbot.
type Dataset struct {
	BotID     string    `json:"botId"`
	Website   *Website  `json:"website,omitempty"`
	QAPairs   []QAPair  `json:"qaPairs"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Empty reports whether the dataset carries no material.
func (d Dataset) Empty() bool {
	return d.Website == nil && len(d.QAPairs) == 0
}

// ReplacePairs swaps every pair of the given source for the supplied pairs.
func (d *Dataset) ReplacePairs(source PairSource, pairs []QAPair) {
	kept := make([]QAPair, 0, len(d.QAPairs)+len(pairs))
	for _, p := range d.QAPairs {
		if p.Source != source {
			kept = append(kept, p)
		}
	}
	for _, p := range pairs {
		p.Source = source
		kept = append(kept, p)
	}
	d.QAPairs = kept
}

// ValidatePairs trims pairs in place and checks that none is incomplete.
func ValidatePairs(pairs []QAPair) error {
	if len(pairs) == 0 {
		return ErrPairsRequired
	}
	for i := range pairs {
		pairs[i].Question = strings.TrimSpace(pairs[i].Question)
		pairs[i].Answer = strings.TrimSpace(pairs[i].Answer)
		if pairs[i].Question == "" || pairs[i].Answer == "" {
			return fmt.Errorf("%w: pair #%d", ErrIncompletePair, i+1)
		}
	}
	return nil
}
