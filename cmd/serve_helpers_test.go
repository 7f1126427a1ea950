//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
)

func TestResolvePort(t *testing.T) {
	tests := []struct {
		name          string
		flag, cfgPort int
		want          int
	}{
		{"flag wins", 9090, 8080, 9090},
		{"config when flag unset", 0, 8080, 8080},
		{"both unset", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvePort(tt.flag, tt.cfgPort))
		})
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartServer_ServesHistoryAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	hs := history.NewStore(history.StoreOptions{
		AllPath:   filepath.Join(dir, "surveillance_all.csv"),
		CovidPath: filepath.Join(dir, "surveillance_covid19.csv"),
	})
	_, err := hs.Merge(ctx, []model.SurveillanceRecord{
		{ReferenceDate: "2025-02-03", TargetEndDate: "2025-02-09", ReportWeek: "2025-06", Pathogen: "新型冠状病毒", ILIPercent: model.Float(2.8)},
		{ReferenceDate: "2025-02-03", TargetEndDate: "2025-02-09", ReportWeek: "2025-06", Pathogen: "流感病毒", ILIPercent: model.Float(31.2)},
	})
	require.NoError(t, err)

	port := freePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, buildHandler(hs, nil, nil), port)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close() //nolint:errcheck
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond, "server did not become ready")

	resp, err := http.Get(base + "/covid")
	require.NoError(t, err)
	var body struct {
		Count   int                        `json:"count"`
		Records []model.SurveillanceRecord `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close() //nolint:errcheck
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "新型冠状病毒", body.Records[0].Pathogen)

	resp, err = http.Get(base + "/records.csv?since=2025-01-01")
	require.NoError(t, err)
	csv, err := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "surveillance_all.csv")
	assert.Contains(t, string(csv), "流感病毒")

	resp, err = http.Get(base + "/runs")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no ledger means no /runs route")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
