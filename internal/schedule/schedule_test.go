package schedule

import (
	"database/sql"
	"testing"
	"time"

	"github.com/genc-murat/tactilesql-scheduler/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence_Cron(t *testing.T) {
	parser := NewCronParser()
	after := time.Date(2025, 3, 10, 14, 30, 10, 0, time.UTC)

	tests := []struct {
		name string
		trg  *model.TaskTrigger
		want time.Time
	}{
		{
			name: "every five minutes",
			trg: &model.TaskTrigger{
				TriggerType:    model.TriggerTypeCron,
				CronExpression: "*/5 * * * *",
			},
			want: time.Date(2025, 3, 10, 14, 35, 0, 0, time.UTC),
		},
		{
			name: "hourly descriptor",
			trg: &model.TaskTrigger{
				TriggerType:    model.TriggerTypeCron,
				CronExpression: "@hourly",
			},
			want: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "daily at midnight in timezone",
			trg: &model.TaskTrigger{
				TriggerType:    model.TriggerTypeCron,
				CronExpression: "0 0 * * *",
				Timezone:       "Asia/Jakarta",
			},
			// 14:30 UTC is 21:30 WIB; next local midnight is 17:00 UTC.
			want: time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := NextOccurrence(parser, tt.trg, after)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_CronInvalid(t *testing.T) {
	parser := NewCronParser()

	_, _, err := NextOccurrence(parser, &model.TaskTrigger{
		TriggerType:    model.TriggerTypeCron,
		CronExpression: "not a cron",
	}, time.Now())
	assert.Error(t, err)

	_, _, err = NextOccurrence(parser, &model.TaskTrigger{
		TriggerType:    model.TriggerTypeCron,
		CronExpression: "* * * * *",
		Timezone:       "Mars/Olympus",
	}, time.Now())
	assert.Error(t, err)
}

func TestNextOccurrence_Interval(t *testing.T) {
	parser := NewCronParser()
	after := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	got, ok, err := NextOccurrence(parser, &model.TaskTrigger{
		TriggerType:     model.TriggerTypeInterval,
		IntervalSeconds: 90,
	}, after)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, after.Add(90*time.Second), got)

	_, _, err = NextOccurrence(parser, &model.TaskTrigger{
		ID:              "trg_bad",
		TriggerType:     model.TriggerTypeInterval,
		IntervalSeconds: 0,
	}, after)
	assert.Error(t, err)
}

func TestNextOccurrence_RunAt(t *testing.T) {
	parser := NewCronParser()
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	got, ok, err := NextOccurrence(parser, &model.TaskTrigger{
		TriggerType: model.TriggerTypeRunAt,
		RunAt:       sql.NullTime{Time: future, Valid: true},
	}, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, future, got)

	// Already fired: no future occurrence, no error.
	_, ok, err = NextOccurrence(parser, &model.TaskTrigger{
		TriggerType: model.TriggerTypeRunAt,
		RunAt:       sql.NullTime{Time: now.Add(-time.Hour), Valid: true},
	}, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMisfireDecision(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lateness time.Duration
		policy   model.MisfirePolicy
		want     Decision
	}{
		{"on time fire_now", 0, model.MisfireFireNow, DecisionDispatch},
		{"within grace skip", 30 * time.Second, model.MisfireSkip, DecisionDispatch},
		{"at grace boundary reschedule", time.Minute, model.MisfireReschedule, DecisionDispatch},
		{"late fire_now still dispatches", 10 * time.Minute, model.MisfireFireNow, DecisionDispatch},
		{"late skip drops occurrence", 10 * time.Minute, model.MisfireSkip, DecisionSkipToFuture},
		{"late reschedule drops occurrence", 10 * time.Minute, model.MisfireReschedule, DecisionSkipToFuture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MisfireDecision(base, base.Add(tt.lateness), tt.policy, DefaultMisfireGrace)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 1*time.Second, RetryDelay(1000, 1))
	assert.Equal(t, 2*time.Second, RetryDelay(1000, 2))
	assert.Equal(t, 1500*time.Millisecond, RetryDelay(500, 3))
	assert.Equal(t, time.Duration(0), RetryDelay(0, 5))
	assert.Equal(t, time.Duration(0), RetryDelay(-1, 1))
	assert.Equal(t, time.Duration(0), RetryDelay(1000, -1))
}

func TestCanRetry(t *testing.T) {
	// maxAttempts 0 means the single attempt only.
	assert.False(t, CanRetry(1, 0))

	// maxAttempts 2 means at most three runs.
	assert.True(t, CanRetry(1, 2))
	assert.True(t, CanRetry(2, 2))
	assert.False(t, CanRetry(3, 2))
}
