package indego

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	vendor := newFakeVendor(t)
	mower := authenticatedMower(t, vendor, MowerConfig{Name: "Lawn", Model: "Indego"})
	collector := NewMetricsCollector([]*Mower{mower})

	expected := `
# HELP indego_state_known Whether a mapped status code has been seen (1=yes)
# TYPE indego_state_known gauge
indego_state_known{mower="Lawn"} 0
# HELP indego_session_authenticated Session state (1=authenticated, 0=login pending)
# TYPE indego_session_authenticated gauge
indego_session_authenticated{mower="Lawn"} 1
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"indego_state_known", "indego_session_authenticated", "indego_mowing"))

	vendor.setCode(513)
	require.NoError(t, mower.Poller.Poll(context.Background()))
	vendor.setCode(99)
	require.Error(t, mower.Poller.Poll(context.Background()))

	expected = `
# HELP indego_mowing Last known mowing state (1=mowing, 0=idle)
# TYPE indego_mowing gauge
indego_mowing{mower="Lawn"} 1
# HELP indego_state_code Last raw status code reported by the vendor API
# TYPE indego_state_code gauge
indego_state_code{mower="Lawn",status="unknown"} 99
# HELP indego_requests_total Vendor requests by operation and result
# TYPE indego_requests_total counter
indego_requests_total{mower="Lawn",op="poll",result="ok"} 1
indego_requests_total{mower="Lawn",op="poll",result="unknown_status"} 1
# HELP indego_logins_total Login attempts by result
# TYPE indego_logins_total counter
indego_logins_total{mower="Lawn",result="error"} 0
indego_logins_total{mower="Lawn",result="ok"} 1
# HELP indego_mower_info Mower metadata
# TYPE indego_mower_info gauge
indego_mower_info{model="Indego",mower="Lawn",serial="1234567"} 1
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"indego_mowing", "indego_state_code", "indego_requests_total",
		"indego_logins_total", "indego_mower_info"))
}
