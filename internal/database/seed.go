package database

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

// Seed is the YAML document of schedule windows and assessment limits, e.g.
//
//	assessments:
//	  - id: quiz-1
//	    classroom_id: class-a
//	    time_limit: 45m
//	windows:
//	  - classroom_id: class-a
//	    assignment_id: quiz-1
//	    start_at: 2026-03-02T08:00:00Z
//	    end_at: 2026-03-02T10:00:00Z
type Seed struct {
	Assessments []SeedAssessment `yaml:"assessments" json:"assessments"`
	Windows     []SeedWindow     `yaml:"windows" json:"windows"`
}

type SeedAssessment struct {
	ID          string `yaml:"id" json:"id"`
	ClassroomID string `yaml:"classroom_id" json:"classroom_id"`
	TimeLimit   string `yaml:"time_limit" json:"time_limit"`
}

type SeedWindow struct {
	ClassroomID  string     `yaml:"classroom_id" json:"classroom_id"`
	AssignmentID string     `yaml:"assignment_id" json:"assignment_id,omitempty"`
	StartAt      *time.Time `yaml:"start_at" json:"start_at"`
	EndAt        *time.Time `yaml:"end_at" json:"end_at"`
}

func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parse seed")
	}
	for i, a := range s.Assessments {
		if a.ID == "" {
			return nil, errors.Errorf("assessment %d: id is required", i)
		}
		if a.TimeLimit != "" {
			if _, err := time.ParseDuration(a.TimeLimit); err != nil {
				return nil, errors.Wrapf(err, "assessment %s: time_limit", a.ID)
			}
		}
	}
	for i, w := range s.Windows {
		if w.ClassroomID == "" {
			return nil, errors.Errorf("window %d: classroom_id is required", i)
		}
		if w.StartAt != nil && w.EndAt != nil && w.EndAt.Before(*w.StartAt) {
			return nil, errors.Errorf("window %d: end_at before start_at", i)
		}
	}
	return &s, nil
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed")
	}
	return ParseSeed(data)
}

// ApplySeed upserts every assessment and window of the seed.
func ApplySeed(ctx context.Context, st store.Store, s *Seed, actor string) error {
	for _, a := range s.Assessments {
		var limit time.Duration
		if a.TimeLimit != "" {
			limit, _ = time.ParseDuration(a.TimeLimit)
		}
		rec := &models.Assessment{ID: a.ID, ClassroomID: a.ClassroomID, TimeLimitSeconds: int64(limit / time.Second)}
		if err := st.PutAssessment(ctx, rec); err != nil {
			return errors.Wrapf(err, "assessment %s", a.ID)
		}
	}
	for _, w := range s.Windows {
		rec := &models.ScheduleWindow{
			ClassroomID:  w.ClassroomID,
			AssignmentID: w.AssignmentID,
			StartAt:      utc(w.StartAt),
			EndAt:        utc(w.EndAt),
			UpdatedBy:    actor,
		}
		if err := st.PutWindow(ctx, rec); err != nil {
			return errors.Wrapf(err, "window %s", w.ClassroomID)
		}
	}
	log.Info().
		Int("assessments", len(s.Assessments)).
		Int("windows", len(s.Windows)).
		Msg("schedule seed applied")
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
