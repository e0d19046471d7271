package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2p-lending-engine/internal/app"
	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/internal/testutil/notifymock"
	"p2p-lending-engine/internal/testutil/railmock"
	"p2p-lending-engine/internal/testutil/testdb"
)

func sqliteOpener(t *testing.T) opener {
	db := testdb.Open(t)
	return func(context.Context) (*app.App, error) {
		return app.Wire(config.Load(), app.Deps{
			DB:       db,
			Rail:     railmock.Accepting("ref"),
			Notifier: &notifymock.Recorder{},
		})
	}
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobs_PrintReports(t *testing.T) {
	open := sqliteOpener(t)
	cases := []struct {
		args []string
		key  string
	}{
		{[]string{"daily", "--at", "2026-01-05T08:00:00Z"}, "candidates"},
		{[]string{"retries"}, "collected"},
		{[]string{"reconcile"}, "checked"},
		{[]string{"restrictions", "--at", "2026-01-05T08:00:00Z"}, "unblocked"},
		{[]string{"dispatch", "-n", "10"}, "dispatched"},
	}
	for _, tc := range cases {
		t.Run(tc.args[0], func(t *testing.T) {
			out, err := execute(t, open, tc.args...)
			require.NoError(t, err)

			var rep map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
			assert.Contains(t, rep, tc.key)
		})
	}
}

func TestJobs_RejectBadAt(t *testing.T) {
	_, err := execute(t, sqliteOpener(t), "daily", "--at", "yesterday")
	assert.ErrorContains(t, err, "RFC3339")
}

func TestJobs_OpenFailure(t *testing.T) {
	boom := errors.New("no database")
	_, err := execute(t, func(context.Context) (*app.App, error) { return nil, boom }, "reconcile")
	assert.ErrorIs(t, err, boom)
}
