package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecordersAreExposed(t *testing.T) {
	metrics.IncCommand("build", nil)
	metrics.IncCommand("play", errors.New("boom"))
	metrics.ObserveTransition("preroll", "success", 150*time.Millisecond)
	metrics.IncBuildFailure("MissingElementType")
	metrics.IncBusMessage("error", "codec")
	metrics.FramesDelivered.Inc()
	metrics.FramesReplaced.Inc()
	metrics.FrameCopies.Inc()
	metrics.SetPipelineState(4)

	body := scrape(t)

	for _, want := range []string{
		`pipelinectl_commands_total{command="build",result="success"}`,
		`pipelinectl_commands_total{command="play",result="failure"}`,
		`pipelinectl_transition_duration_seconds_count{operation="preroll",result="success"}`,
		`pipelinectl_build_failures_total{reason="MissingElementType"}`,
		`pipelinectl_bus_messages_total{category="codec",type="error"}`,
		`pipelinectl_frames_delivered_total`,
		`pipelinectl_frames_replaced_total`,
		`pipelinectl_frame_copies_total`,
		`pipelinectl_pipeline_state 4`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %s in scrape output", want)
	}
}
