package bot

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/example/kanadeck/pkg/models"
)

const progressBarWidth = 10

// Glyphs for activity levels 0-4
var levelGlyphs = []string{"⬜", "🟩", "🟩", "🟢", "💚"}

func formatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatProgress(progress float64) string {
	filled := int(math.Round(progress * progressBarWidth))
	filled = max(0, min(filled, progressBarWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("📈 Progress: %s %.0f%%", bar, progress*100)
}

// formatActivity renders the activity window as weeks of level glyphs, oldest first
func formatActivity(activity models.Activity) string {
	var sb strings.Builder
	sb.WriteString("📊 Last four weeks\n\n")
	for i, level := range activity.Levels {
		if level < 0 || level >= len(levelGlyphs) {
			level = 0
		}
		sb.WriteString(levelGlyphs[level])
		if (i+1)%7 == 0 {
			sb.WriteString("\n")
		}
	}
	if len(activity.Levels)%7 != 0 {
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nReviews: %d (%.1f per day)\n", activity.TotalReviews, activity.AveragePerDay)
	fmt.Fprintf(&sb, "Streak: %s\n", formatDays(activity.Streak))
	fmt.Fprintf(&sb, "Mastered: %d/%d\n", activity.Mastered, activity.Cards)
	if activity.Quizzes > 0 {
		fmt.Fprintf(&sb, "Quizzes: %d (%.0f%% correct)\n", activity.Quizzes, activity.QuizAccuracy*100)
	}
	if last := activity.LastQuiz; last != nil {
		fmt.Fprintf(&sb, "Last quiz: %d/%d on %s\n", last.Correct, last.Total, last.Deck)
	}
	sb.WriteString(formatProgress(activity.Progress))
	return sb.String()
}

// Items per grid row
const gridColumns = 5

// formatGrid lists a deck's items grouped by category in catalog order
func formatGrid(deck string, items []models.Item) string {
	var categories []string
	grouped := make(map[string][]models.Item)
	for _, item := range items {
		if _, ok := grouped[item.Category]; !ok {
			categories = append(categories, item.Category)
		}
		grouped[item.Category] = append(grouped[item.Category], item)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔤 %s (%d)\n", deck, len(items))
	for _, category := range categories {
		if category != "" {
			fmt.Fprintf(&sb, "\n%s\n", category)
		} else {
			sb.WriteString("\n")
		}
		for i, item := range grouped[category] {
			if i > 0 && i%gridColumns == 0 {
				sb.WriteString("\n")
			} else if i > 0 {
				sb.WriteString("  ")
			}
			fmt.Fprintf(&sb, "%s %s", item.Symbol, item.Transliteration)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitMessage cuts text at line breaks into chunks of at most limit bytes.
// A single longer line is cut at a rune boundary.
func splitMessage(text string, limit int) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}
