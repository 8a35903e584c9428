package promcqrs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/cqrs"
	"github.com/bjaus/cqrs/promcqrs"
)

type shipOrder struct {
	cqrs.CommandMarker
	Fail bool
}

type countOrders struct {
	cqrs.QueryMarker
}

func newDispatcher(t *testing.T, reg prometheus.Registerer) *cqrs.Dispatcher {
	t.Helper()

	mw, err := promcqrs.NewMiddleware(&promcqrs.Config{Registerer: reg})
	require.NoError(t, err)

	d := cqrs.New(cqrs.WithMiddleware(mw))
	require.NoError(t, cqrs.RegisterCommandFunc(d, func(ctx context.Context, cmd shipOrder) (bool, error) {
		if cmd.Fail {
			return false, errors.New("cannot ship")
		}
		return true, nil
	}))
	require.NoError(t, cqrs.RegisterQueryFunc(d, func(context.Context, countOrders) (int, error) {
		return 3, nil
	}))
	return d
}

func TestNewMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		config *promcqrs.Config
	}{
		{
			name:   "with custom registry",
			config: &promcqrs.Config{Registerer: prometheus.NewRegistry()},
		},
		{
			name: "with custom names",
			config: &promcqrs.Config{
				Namespace:       "orders",
				Subsystem:       "bus",
				Registerer:      prometheus.NewRegistry(),
				DurationBuckets: []float64{0.001, 0.01, 0.1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := promcqrs.NewMiddleware(tt.config)
			assert.NoError(t, err)
			assert.NotNil(t, mw)
		})
	}
}

func TestNewMiddlewareDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := promcqrs.NewMiddleware(&promcqrs.Config{Registerer: reg})
	require.NoError(t, err)

	_, err = promcqrs.NewMiddleware(&promcqrs.Config{Registerer: reg})
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestMiddlewareRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := newDispatcher(t, reg)
	ctx := context.Background()

	_, _ = d.Send(ctx, shipOrder{})
	_, _ = d.Send(ctx, shipOrder{})
	_, _ = d.Send(ctx, shipOrder{Fail: true})
	_, _ = d.Send(ctx, countOrders{})

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"cqrs_dispatcher_messages_total",
		"cqrs_dispatcher_duration_seconds",
	}, names)

	total := func(labels ...string) float64 {
		for _, f := range families {
			if f.GetName() != "cqrs_dispatcher_messages_total" {
				continue
			}
			for _, m := range f.GetMetric() {
				got := make([]string, 0, 3)
				for _, lp := range m.GetLabel() {
					got = append(got, lp.GetValue())
				}
				if assert.ObjectsAreEqual(labels, got) {
					return m.GetCounter().GetValue()
				}
			}
		}
		return 0
	}

	// label pairs are sorted by name: message_type, outcome, role
	assert.Equal(t, float64(2), total("promcqrs_test.shipOrder", promcqrs.OutcomeSuccess, "command"))
	assert.Equal(t, float64(1), total("promcqrs_test.shipOrder", promcqrs.OutcomeFailure, "command"))
	assert.Equal(t, float64(1), total("promcqrs_test.countOrders", promcqrs.OutcomeSuccess, "query"))

	series, err := testutil.GatherAndCount(reg, "cqrs_dispatcher_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestMiddlewareKeepsResult(t *testing.T) {
	d := newDispatcher(t, prometheus.NewRegistry())

	n, err := cqrs.Send[int](context.Background(), d, countOrders{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = d.Send(context.Background(), shipOrder{Fail: true})
	assert.EqualError(t, err, "cannot ship")
}
