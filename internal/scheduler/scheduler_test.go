package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"auction-escrow/internal/auction"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, maxFailures int) (*Scheduler, *MockSettler, *MockDueFinder) {
	ctrl := gomock.NewController(t)
	settler := NewMockSettler(ctrl)
	finder := NewMockDueFinder(ctrl)
	s := New(settler, finder, Config{
		Interval:    10 * time.Millisecond,
		MaxFailures: maxFailures,
		Workers:     2,
		BatchSize:   50,
	})
	return s, settler, finder
}

// Tests RunOnce
func TestScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(settler *MockSettler, finder *MockDueFinder)
		expected  RunReport
		expectErr bool
	}{
		{
			name: "nothing_due",
			mockSetup: func(settler *MockSettler, finder *MockDueFinder) {
				finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), 50).Return(nil, nil)
			},
			expected: RunReport{},
		},
		{
			name: "settles_every_due_listing",
			mockSetup: func(settler *MockSettler, finder *MockDueFinder) {
				finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), 50).Return([]string{"l1", "l2", "l3"}, nil)
				settler.EXPECT().SettleListing(gomock.Any(), "l1").Return(auction.SettlementResult{Outcome: auction.OutcomeSettled}, nil)
				settler.EXPECT().SettleListing(gomock.Any(), "l2").Return(auction.SettlementResult{Outcome: auction.OutcomeExpiredNoBids}, nil)
				settler.EXPECT().SettleListing(gomock.Any(), "l3").
					Return(auction.SettlementResult{Outcome: auction.OutcomeAlreadyFinal, AlreadyFinal: true}, nil)
			},
			expected: RunReport{Due: 3, Settled: 2, AlreadyFinal: 1},
		},
		{
			name: "failure_does_not_stop_other_listings",
			mockSetup: func(settler *MockSettler, finder *MockDueFinder) {
				finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), 50).Return([]string{"l1", "l2"}, nil)
				settler.EXPECT().SettleListing(gomock.Any(), "l1").Return(auction.SettlementResult{}, errors.New("lock timeout"))
				settler.EXPECT().SettleListing(gomock.Any(), "l2").Return(auction.SettlementResult{Outcome: auction.OutcomeSettled}, nil)
			},
			expected: RunReport{Due: 2, Settled: 1, Failed: 1},
		},
		{
			name: "finder_error",
			mockSetup: func(settler *MockSettler, finder *MockDueFinder) {
				finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), 50).Return(nil, errors.New("db down"))
			},
			expectErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, settler, finder := newTestScheduler(t, 3)
			tc.mockSetup(settler, finder)

			report, err := s.RunOnce(context.Background())
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, report)
		})
	}
}

// Tests the consecutive failure counter and the operator alert threshold
func TestScheduler_AlertsAfterConsecutiveFailures(t *testing.T) {
	s, settler, finder := newTestScheduler(t, 3)

	finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), gomock.Any()).Return([]string{"stuck"}, nil).Times(4)
	settler.EXPECT().SettleListing(gomock.Any(), "stuck").Return(auction.SettlementResult{}, errors.New("boom")).Times(3)
	settler.EXPECT().SettleListing(gomock.Any(), "stuck").Return(auction.SettlementResult{Outcome: auction.OutcomeSettled}, nil)

	ctx := context.Background()

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Alerts)
	require.Equal(t, 1, s.Failures("stuck"))

	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, s.Failures("stuck"))

	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Alerts)
	require.Equal(t, 3, s.Failures("stuck"))

	// still retried after the alert; success clears the counter
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Settled)
	require.Equal(t, 0, s.Failures("stuck"))
}

// Tests that the worker limit bounds concurrent settlements
func TestScheduler_RespectsWorkerLimit(t *testing.T) {
	s, settler, finder := newTestScheduler(t, 3)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), gomock.Any()).Return(ids, nil)

	var inFlight, peak int32
	settler.EXPECT().SettleListing(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, id string) (auction.SettlementResult, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return auction.SettlementResult{Outcome: auction.OutcomeSettled}, nil
		}).Times(len(ids))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(ids), report.Settled)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

// Tests that Start runs immediately and stop waits for the loop to exit
func TestScheduler_StartStop(t *testing.T) {
	s, _, finder := newTestScheduler(t, 3)

	ran := make(chan struct{}, 1)
	finder.EXPECT().ListDueListingIDs(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, now time.Time, limit int) ([]string, error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil, nil
		}).MinTimes(1)

	stop := s.Start(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not run on start")
	}

	stop()
	stop()
}
