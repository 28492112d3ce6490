package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"curator/api/internal/schedule"
)

func TestDefaultDomains(t *testing.T) {
	domains := DefaultDomains()
	if len(domains) != 3 {
		t.Fatalf("expected 3 domains, got %d", len(domains))
	}
	sermons := domains[0]
	if sermons.CacheKey != "schedule" {
		t.Errorf("expected sermons cache key 'schedule', got %q", sermons.CacheKey)
	}
	if sermons.Weekdays() != schedule.NewWeekdays(time.Sunday) {
		t.Errorf("expected sermons on sunday, got %s", sermons.Weekdays())
	}
	if domains[1].Weekdays() != schedule.Workdays {
		t.Errorf("expected devotions on workdays, got %s", domains[1].Weekdays())
	}
	if sermons.BatchSize != 30 || sermons.PlanLookaheadDays != 90 || sermons.CascadeLookaheadDays != 180 {
		t.Errorf("unexpected scheduling defaults %+v", sermons)
	}
	if sermons.Fields.Date != "scheduled_date" {
		t.Errorf("expected default date field, got %q", sermons.Fields.Date)
	}
}

func TestParseDomains(t *testing.T) {
	data := []byte(`
domains:
  - name: youth
    collection: youth-talks
    default_weekdays: [fri]
    batch_size: 8
    fields:
      date: talk_date
      week: unit
`)
	domains, err := ParseDomains(data)
	if err != nil {
		t.Fatalf("ParseDomains failed: %v", err)
	}
	if len(domains) != 1 {
		t.Fatalf("expected 1 domain, got %d", len(domains))
	}
	d := domains[0]
	if d.CacheKey != "youth" || d.SeriesCollection != "youth-talks-series" || d.Label != "youth" {
		t.Errorf("unexpected derived names %+v", d)
	}
	if d.Fields.Date != "talk_date" || d.Fields.Week != "unit" || d.Fields.Day != "day" {
		t.Errorf("unexpected fields %+v", d.Fields)
	}
	if d.BatchSize != 8 || d.CascadeLookaheadDays != 180 {
		t.Errorf("unexpected sizes %+v", d)
	}
	if d.Weekdays() != schedule.NewWeekdays(time.Friday) {
		t.Errorf("unexpected weekdays %s", d.Weekdays())
	}
}

func TestParseDomainsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":        "domains: []",
		"no name":      "domains:\n  - collection: x\n",
		"no coll":      "domains:\n  - name: x\n",
		"bad weekday":  "domains:\n  - name: x\n    collection: x\n    default_weekdays: [someday]\n",
		"duplicate":    "domains:\n  - name: x\n    collection: a\n  - name: x\n    collection: b\n",
		"invalid yaml": "domains: [",
	}
	for name, data := range cases {
		if _, err := ParseDomains([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadDomainsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yaml")
	if err := os.WriteFile(path, []byte("domains:\n  - name: kids\n    collection: kids-lessons\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	domains, err := LoadDomains(path)
	if err != nil {
		t.Fatalf("LoadDomains failed: %v", err)
	}
	if domains[0].Name != "kids" {
		t.Fatalf("unexpected domain %+v", domains[0])
	}

	if _, err := LoadDomains(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read domains file") {
		t.Fatalf("expected read error, got %v", err)
	}
	defaults, err := LoadDomains("")
	if err != nil || len(defaults) != 3 {
		t.Fatalf("expected defaults, got %d domains (%v)", len(defaults), err)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("CACHE_FRESH_TTL_SECONDS", "60")
	t.Setenv("UPSTREAM_RPS", "2.5")
	t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "not-a-number")
	cfg := Load()
	if cfg.CacheFreshTTL != time.Minute {
		t.Errorf("expected 1m fresh ttl, got %s", cfg.CacheFreshTTL)
	}
	if cfg.CacheStaleTTL != 10*time.Minute {
		t.Errorf("expected default stale ttl, got %s", cfg.CacheStaleTTL)
	}
	if cfg.UpstreamRPS != 2.5 {
		t.Errorf("expected rps 2.5, got %v", cfg.UpstreamRPS)
	}
	if cfg.UpstreamTimeout != 15*time.Second {
		t.Errorf("expected fallback timeout, got %s", cfg.UpstreamTimeout)
	}
}
