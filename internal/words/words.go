// internal/words/words.go
package words

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jason-s-yu/imposter/internal/models"
)

// Default is the built-in catalog seeded when the word_pairs table is empty.
var Default = []models.WordPair{
	{Category: "food", RealWord: "apples", ImposterWord: "fruit"},
	{Category: "music", RealWord: "piano", ImposterWord: "instrument"},
	{Category: "animals", RealWord: "dog", ImposterWord: "animal"},
	{Category: "nature", RealWord: "ocean", ImposterWord: "water"},
	{Category: "sports", RealWord: "soccer", ImposterWord: "sport"},
	{Category: "food", RealWord: "pizza", ImposterWord: "bread"},
	{Category: "places", RealWord: "library", ImposterWord: "bookstore"},
	{Category: "animals", RealWord: "tiger", ImposterWord: "lion"},
	{Category: "transport", RealWord: "train", ImposterWord: "bus"},
	{Category: "weather", RealWord: "snow", ImposterWord: "rain"},
}

// ReadCSV parses rows of category,real_word,imposter_word. A header row whose
// first column is "category" is skipped.
func ReadCSV(r io.Reader) ([]models.WordPair, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 3

	var pairs []models.WordPair
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read word pairs: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "category") {
			continue
		}
		p := models.WordPair{
			Category:     strings.TrimSpace(rec[0]),
			RealWord:     strings.TrimSpace(rec[1]),
			ImposterWord: strings.TrimSpace(rec[2]),
		}
		if p.RealWord == "" || p.ImposterWord == "" {
			return nil, fmt.Errorf("line %d: real and imposter words are required", line)
		}
		if strings.EqualFold(p.RealWord, p.ImposterWord) {
			return nil, fmt.Errorf("line %d: real and imposter words must differ", line)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
