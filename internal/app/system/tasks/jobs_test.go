package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/app/cycle"
	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/tasks"
	"go.uber.org/zap"
)

type stubCycle struct {
	err     error
	trigger string
}

func (s *stubCycle) Kind() string  { return runstore.KindRanking }
func (s *stubCycle) Running() bool { return false }
func (s *stubCycle) Run(ctx context.Context, trigger string) (runstore.Run, error) {
	s.trigger = trigger
	return runstore.Run{}, s.err
}

func TestCycleJob(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		skipped bool
	}{
		{"succeeded", nil, false},
		{"failed cycle", errors.New("negotiation failed"), false},
		{"busy", cycle.ErrBusy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubCycle{err: tt.err}
			job := tasks.CycleJob(c, time.Hour, 0)

			if job.Name != "ranking-cycle" {
				t.Errorf("Name = %q", job.Name)
			}
			err := job.Run(context.Background())
			if got := errors.Is(err, tasks.ErrSkipped); got != tt.skipped {
				t.Errorf("skipped = %v, want %v (err %v)", got, tt.skipped, err)
			}
			if !tt.skipped && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if c.trigger != runstore.TriggerSchedule {
				t.Errorf("trigger = %q, want %q", c.trigger, runstore.TriggerSchedule)
			}
		})
	}
}

type stubPruner struct {
	cutoff time.Time
}

func (s *stubPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 3, nil
}

func TestRunRetentionJob(t *testing.T) {
	p := &stubPruner{}
	job := tasks.RunRetentionJob(p, 48*time.Hour, zap.NewNop())

	before := time.Now().Add(-48 * time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if p.cutoff.Before(before) || p.cutoff.After(time.Now().Add(-47*time.Hour)) {
		t.Errorf("cutoff = %v, want about 48h ago", p.cutoff)
	}
}
