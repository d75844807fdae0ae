package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.ObserveAttempt("cases", false)
	r.ObserveAttempt("cases", true)
	r.ObserveAttempt("vaccine", true)
	r.ObserveJoin("nj", 21, 1)
	r.ObserveLayer("nj", "vax")
	r.ObserveLayer("nj", "vax")

	assert.InDelta(t, 1, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("cases", "failure")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.FetchAttempts.WithLabelValues("cases", "success"))+
		testutil.ToFloat64(r.FetchAttempts.WithLabelValues("vaccine", "success")), 0)
	assert.InDelta(t, 21, testutil.ToFloat64(r.JoinedRows.WithLabelValues("nj")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.DroppedKeys.WithLabelValues("nj")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.LayersRendered.WithLabelValues("nj", "vax")), 0)
}

func TestObserveRunOnlyStampsSuccess(t *testing.T) {
	r := New()

	r.ObserveRun("chicago", time.Now().Add(-time.Second), errors.New("boom"))
	assert.InDelta(t, 0, testutil.ToFloat64(r.LastSuccess.WithLabelValues("chicago")), 0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(r.RunDuration.WithLabelValues("chicago")), 1.0)

	r.ObserveRun("chicago", time.Now(), nil)
	assert.Greater(t, testutil.ToFloat64(r.LastSuccess.WithLabelValues("chicago")), 0.0)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveLayer("nj", "deaths")

	path := filepath.Join(t.TempDir(), "textfile", "njvaxbot.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `njvaxbot_layers_rendered_total{layer="deaths",pipeline="nj"} 1`)
}

func TestPush(t *testing.T) {
	var body string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/metrics/job/njvaxbot") {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		b, _ := io.ReadAll(r.Body)
		body = string(b)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveJoin("nj", 21, 0)

	require.NoError(t, r.Push(srv.URL, "njvaxbot"))
	assert.NotEmpty(t, body)
}
