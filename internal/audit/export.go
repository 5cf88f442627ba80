package audit

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
)

// WriteCSV renders events as a downloadable sheet, grouped by log category
// (auth, navigation, moderation). Each category starts with a section row
// followed by a header row; metadata flattens to "k=v" pairs.
func WriteCSV(w io.Writer, events []Event) error {
	byCategory := make(map[string][]Event)
	for _, ev := range events {
		c := Category(ev.Action)
		byCategory[c] = append(byCategory[c], ev)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	cw := csv.NewWriter(w)
	for _, category := range categories {
		if err := cw.Write([]string{"category: " + category}); err != nil {
			return err
		}
		if err := cw.Write([]string{"occurred_at", "actor", "action", "path", "ip", "user_agent", "metadata"}); err != nil {
			return err
		}
		for _, ev := range byCategory[category] {
			row := []string{
				ev.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
				ev.Actor,
				ev.Action,
				ev.Path,
				ev.IP,
				ev.UserAgent,
				flattenMetadata(ev.Metadata),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func flattenMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+meta[k])
	}
	return strings.Join(pairs, "; ")
}
