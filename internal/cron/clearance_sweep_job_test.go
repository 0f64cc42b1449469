package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/internal/clearance"
)

type fakeSweeper struct {
	result clearance.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) ProcessEligibleClearances(context.Context) (clearance.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

func TestClearanceSweepJobSucceeds(t *testing.T) {
	sweeper := &fakeSweeper{result: clearance.SweepResult{Processed: 3, TotalAmountCents: 13500, SellersNotified: 1}}
	job, err := NewClearanceSweepJob(ClearanceSweepJobParams{Logger: testLogger(), Sweeper: sweeper})
	require.NoError(t, err)

	assert.Equal(t, "clearance-sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestClearanceSweepJobReportsPartialFailure(t *testing.T) {
	cause := errors.New("timer locked")
	sweeper := &fakeSweeper{
		result: clearance.SweepResult{Processed: 2, Failed: 1},
		err:    cause,
	}
	job, err := NewClearanceSweepJob(ClearanceSweepJobParams{Logger: testLogger(), Sweeper: sweeper})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "1 timers failed")
}

func TestNewClearanceSweepJobRequiresSweeper(t *testing.T) {
	_, err := NewClearanceSweepJob(ClearanceSweepJobParams{Logger: testLogger()})
	require.Error(t, err)
}
