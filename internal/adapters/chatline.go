package adapters

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ChatLine is one parsed transcript line.
type ChatLine struct {
	Day    time.Time // midnight UTC of the calendar day
	Clock  string    // time-of-day as written in the export
	Sender string
	Text   string
}

// Chat export grammar. Exports differ in punctuation around the
// timestamp, so the accepted variants are table-driven instead of one
// monolithic pattern. Each variant captures (date, time, sender, text).
const (
	datePat = `(\d{1,2}/\d{1,2}/\d{2,4})`
	timePat = `(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[AaPp][Mm])?)`
	tailPat = `\s+(?:-\s+)?([^:]+):\s+(.*)$`
)

var chatLineVariants = []*regexp.Regexp{
	// [1/2/22, 9:15 PM] Sender: text
	regexp.MustCompile(`^\[` + datePat + `,?\s+` + timePat + `\]` + tailPat),
	// 1/2/22, 21:15 - Sender: text
	regexp.MustCompile(`^` + datePat + `,\s+` + timePat + tailPat),
	// Tolerate a stray opening or closing bracket on either side.
	regexp.MustCompile(`^\[?` + datePat + `,?\s+` + timePat + `\]?` + tailPat),
}

var chatDateLayouts = []string{"1/2/2006", "1/2/06"}

// ParseChatLine matches one physical line against the transcript
// grammar. Lines that do not match are dropped by the caller;
// continuation lines of multi-line messages are evaluated (and fail)
// independently, which is a deliberate approximation.
func ParseChatLine(line string) (ChatLine, bool) {
	for _, re := range chatLineVariants {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		day, err := parseChatDate(m[1])
		if err != nil {
			return ChatLine{}, false
		}
		return ChatLine{
			Day:    day,
			Clock:  strings.TrimSpace(m[2]),
			Sender: strings.TrimSpace(m[3]),
			Text:   strings.TrimSpace(m[4]),
		}, true
	}
	return ChatLine{}, false
}

func parseChatDate(s string) (time.Time, error) {
	for _, layout := range chatDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable chat date %q", s)
}

// DayKey formats a day as the YYYY-MM-DD grouping key.
func (l ChatLine) DayKey() string {
	return l.Day.Format("2006-01-02")
}
