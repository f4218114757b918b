package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

const maxTextColumn = 80

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}

// writeStructured writes v as JSON or YAML. YAML keys follow the JSON field
// names so both formats read the same.
func writeStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if format == outputJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

// render writes v in the structured formats, or calls text for the default format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	if format == outputText {
		return text(w)
	}
	return writeStructured(w, format, v)
}

// countOf formats n with a singular or plural noun: "1 item", "3 items".
func countOf(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

func writeItems(w io.Writer, items []*models.FeedbackItem) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tSENTIMENT\tURGENCY\tTOPICS\tTEXT")
	for _, item := range items {
		sentiment, urgency, topics := "-", "-", "-"
		if c := item.Classification; c != nil {
			sentiment = string(c.Sentiment)
			urgency = string(c.Urgency)
			if len(c.Topics) > 0 {
				topics = strings.Join(c.Topics, ",")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Source, sentiment, urgency, topics, truncate(item.Text, maxTextColumn))
	}
	return tw.Flush()
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(tw, "  %s\t%d\n", key, counts[key])
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}
