package store

import (
	"context"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// eventSeedFile is the on-disk shape of an optional event-catalogue seed,
// the same YAML-config idiom the teacher uses for strategies.yaml.
type eventSeedFile struct {
	Events []struct {
		Day   int     `yaml:"day"`
		Title string  `yaml:"title"`
		News  *string `yaml:"news"`
		Trend string  `yaml:"trend"`
	} `yaml:"events"`
}

// LoadEventSeed parses a YAML event-catalogue seed file. A missing file is
// not an error: callers treat it as "nothing to seed".
func LoadEventSeed(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var seed eventSeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(seed.Events))
	for _, e := range seed.Events {
		events = append(events, Event{
			ID:    uuid.NewString(),
			Day:   e.Day,
			Title: e.Title,
			News:  e.News,
			Trend: Trend(e.Trend),
		})
	}
	return events, nil
}

// SeedEventsIfEmpty loads events.yaml next to the working directory and
// inserts them only when the catalogue is currently empty, so a redeploy
// never duplicates admin-authored events.
func SeedEventsIfEmpty(ctx context.Context, q Querier, path string) error {
	existing, err := ListEvents(ctx, q)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	events, err := LoadEventSeed(path)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := CreateEvent(ctx, q, e); err != nil {
			return err
		}
	}
	return nil
}
