package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"curator/api/internal/schedule"
)

// Domain describes one family of schedulable content and how its records
// are laid out in the upstream collection API.
type Domain struct {
	Name             string       `yaml:"name" json:"name"`
	Label            string       `yaml:"label" json:"label"`
	CacheKey         string       `yaml:"cache_key" json:"cacheKey"`
	Collection       string       `yaml:"collection" json:"collection"`
	SeriesCollection string       `yaml:"series_collection" json:"seriesCollection"`
	Fields           ItemFields   `yaml:"fields" json:"-"`
	SeriesFields     SeriesFields `yaml:"series_fields" json:"-"`
	DefaultWeekdays  []string     `yaml:"default_weekdays" json:"defaultWeekdays"`
	Categories       []string     `yaml:"categories" json:"categories,omitempty"`

	BatchSize            int `yaml:"batch_size" json:"batchSize"`
	PlanLookaheadDays    int `yaml:"plan_lookahead_days" json:"planLookaheadDays"`
	CascadeLookaheadDays int `yaml:"cascade_lookahead_days" json:"cascadeLookaheadDays"`

	weekdays schedule.Weekdays
}

// ItemFields names the upstream fields read from and written to backlog items.
type ItemFields struct {
	Title     string `yaml:"title"`
	Body      string `yaml:"body"`
	Order     string `yaml:"order"`
	Week      string `yaml:"week"`
	Day       string `yaml:"day"`
	Completed string `yaml:"completed"`
	Date      string `yaml:"date"`
}

// SeriesFields names the upstream fields of series records.
type SeriesFields struct {
	Title     string `yaml:"title"`
	StartDate string `yaml:"start_date"`
	Weekdays  string `yaml:"weekdays"`
}

// Weekdays is the fallback weekday set used when a series omits its own.
func (d Domain) Weekdays() schedule.Weekdays {
	return d.weekdays
}

type domainsFile struct {
	Domains []Domain `yaml:"domains"`
}

// DefaultDomains returns the built-in sermon, devotion and English-class
// definitions.
func DefaultDomains() []Domain {
	domains := []Domain{
		{
			Name:             "sermons",
			Label:            "Sermons",
			CacheKey:         "schedule",
			Collection:       "sermons",
			SeriesCollection: "sermon-series",
			DefaultWeekdays:  []string{"sunday"},
			Categories:       []string{"doctrine", "gospel", "prayer", "family", "mission", "holiday"},
		},
		{
			Name:             "devotions",
			Label:            "Devotional lessons",
			CacheKey:         "devotion-lessons",
			Collection:       "devotion-lessons",
			SeriesCollection: "devotion-series",
			DefaultWeekdays:  []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
			Categories:       []string{"faith", "hope", "love", "wisdom", "gratitude", "service"},
		},
		{
			Name:             "english",
			Label:            "English class sessions",
			CacheKey:         "english-sessions",
			Collection:       "english-class-sessions",
			SeriesCollection: "english-class-series",
			DefaultWeekdays:  []string{"tuesday", "thursday"},
			Categories:       []string{"grammar", "vocabulary", "conversation", "reading", "writing", "listening"},
		},
	}
	for i := range domains {
		if err := domains[i].normalize(); err != nil {
			panic(err)
		}
	}
	return domains
}

// LoadDomains reads domain definitions from a YAML file. An empty path
// returns DefaultDomains.
func LoadDomains(path string) ([]Domain, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDomains(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}
	return ParseDomains(data)
}

// ParseDomains decodes and validates YAML domain definitions.
func ParseDomains(data []byte) ([]Domain, error) {
	var file domainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse domains: %w", err)
	}
	if len(file.Domains) == 0 {
		return nil, fmt.Errorf("parse domains: no domains defined")
	}
	seen := make(map[string]struct{}, len(file.Domains))
	for i := range file.Domains {
		d := &file.Domains[i]
		if err := d.normalize(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("domain %q defined twice", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return file.Domains, nil
}

func (d *Domain) normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if d.Collection == "" {
		return fmt.Errorf("domain %q: collection is required", d.Name)
	}
	if d.Label == "" {
		d.Label = d.Name
	}
	if d.CacheKey == "" {
		d.CacheKey = d.Name
	}
	if d.SeriesCollection == "" {
		d.SeriesCollection = d.Collection + "-series"
	}

	d.Fields.Title = orDefault(d.Fields.Title, "title")
	d.Fields.Body = orDefault(d.Fields.Body, "content")
	d.Fields.Order = orDefault(d.Fields.Order, "order")
	d.Fields.Week = orDefault(d.Fields.Week, "week")
	d.Fields.Day = orDefault(d.Fields.Day, "day")
	d.Fields.Completed = orDefault(d.Fields.Completed, "completed_at")
	d.Fields.Date = orDefault(d.Fields.Date, "scheduled_date")
	d.SeriesFields.Title = orDefault(d.SeriesFields.Title, "title")
	d.SeriesFields.StartDate = orDefault(d.SeriesFields.StartDate, "start_date")
	d.SeriesFields.Weekdays = orDefault(d.SeriesFields.Weekdays, "weekdays")

	if d.BatchSize <= 0 {
		d.BatchSize = schedule.DefaultBatchSize
	}
	if d.PlanLookaheadDays <= 0 {
		d.PlanLookaheadDays = schedule.DefaultPlanLookaheadDays
	}
	if d.CascadeLookaheadDays <= 0 {
		d.CascadeLookaheadDays = schedule.DefaultCascadeLookaheadDays
	}

	weekdays, err := schedule.ParseWeekdays(d.DefaultWeekdays)
	if err != nil {
		return fmt.Errorf("domain %q: %w", d.Name, err)
	}
	d.weekdays = weekdays
	return nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
