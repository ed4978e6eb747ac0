package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwatch/internal/core"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		days      int
		from, to  string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{name: "configured default", wantStart: "2024-05-01", wantEnd: "2024-05-14"},
		{name: "explicit days", days: 7, wantStart: "2024-05-08", wantEnd: "2024-05-14"},
		{name: "explicit range", from: "2024-04-01", to: "2024-04-30", wantStart: "2024-04-01", wantEnd: "2024-04-30"},
		{name: "single day range", from: "2024-04-01", to: "2024-04-01", wantStart: "2024-04-01", wantEnd: "2024-04-01"},
		{name: "reversed range", from: "2024-04-30", to: "2024-04-01", wantErr: true},
		{name: "bad from", from: "04/01/2024", to: "2024-04-30", wantErr: true},
		{name: "negative days", days: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := resolvePeriod(now, tt.days, 14, tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, core.FormatDate(start))
			assert.Equal(t, tt.wantEnd, core.FormatDate(end))
		})
	}
}

func TestPrintNotifications(t *testing.T) {
	var buf bytes.Buffer
	printNotifications(&buf, nil)
	assert.Equal(t, "no notifications\n", buf.String())

	buf.Reset()
	printNotifications(&buf, []core.Notification{{
		ID:        "n-1",
		Severity:  core.SeverityCritical,
		Title:     "Food spending above target",
		CreatedAt: time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "n-1")
	assert.Contains(t, out, "Food spending above target")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["reap"])
	assert.True(t, names["notifications"])
}
