package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

var (
	ErrCSVHeader    = errors.New("csv must have a header with question and answer columns")
	ErrCSVEmpty     = errors.New("csv contains no question and answer rows")
	ErrCSVMalformed = errors.New("malformed csv")
)

// ParseCSV reads question/answer rows. The header is matched case-insensitively
// and the two columns may appear in any order; extra columns are ignored.
func ParseCSV(r io.Reader) ([]chatbot.QAPair, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrCSVHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCSVMalformed, err)
	}

	questionCol, answerCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "question":
			questionCol = i
		case "answer":
			answerCol = i
		}
	}
	if questionCol < 0 || answerCol < 0 {
		return nil, ErrCSVHeader
	}

	pairs := make([]chatbot.QAPair, 0, 16)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCSVMalformed, line, err)
		}
		if blankRecord(record) {
			continue
		}

		pair := chatbot.QAPair{
			Question: field(record, questionCol),
			Answer:   field(record, answerCol),
			Source:   chatbot.SourceCSV,
		}
		if pair.Question == "" || pair.Answer == "" {
			return nil, fmt.Errorf("%w: csv line %d", chatbot.ErrIncompletePair, line)
		}
		pairs = append(pairs, pair)
	}

	if len(pairs) == 0 {
		return nil, ErrCSVEmpty
	}
	return pairs, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
