package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveSubmission("write", nil)
	r.ObserveSubmission("write", nil)
	r.ObserveSubmission("finalize", assert.AnError)
	r.AddProgramBytes(949)
	r.AddProgramBytes(0)
	r.ObserveDeployment("fixed", nil)
	r.SetChunkSize("fixed", 949)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.submissions.WithLabelValues("write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("finalize", "failure")))
	assert.Equal(t, 949.0, testutil.ToFloat64(r.bytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deployments.WithLabelValues("fixed", "success")))
	assert.Equal(t, 949.0, testutil.ToFloat64(r.chunkSize.WithLabelValues("fixed")))

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap["soltest_transactions_submitted_total{phase=write,result=success}"])
	assert.Equal(t, 949.0, snap["soltest_program_bytes_written_total"])
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSubmission("write", nil)
		r.AddProgramBytes(10)
		r.ObserveDeployment("fixed", nil)
		r.SetChunkSize("fixed", 1)
		snap, err := r.Snapshot()
		assert.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveDeployment("upgradeable", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `soltest_deployments_total{result="success",variant="upgradeable"} 1`)
}

func TestServer(t *testing.T) {
	r := NewRecorder()
	r.AddProgramBytes(2048)

	s := NewServer(zerolog.Nop(), "127.0.0.1:0", r)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "soltest_program_bytes_written_total 2048")

	t.Run("address in use", func(t *testing.T) {
		other := NewServer(zerolog.Nop(), s.Addr(), r)
		assert.Error(t, other.Start())
	})
}
