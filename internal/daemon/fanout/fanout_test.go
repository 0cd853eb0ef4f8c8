package fanout

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Unidata/tds-sub001/internal/daemon/target"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/Unidata/tds-sub001/pkg/signer"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() (*logrus.Entry, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

// signedServer answers 200 only for requests carrying a valid token.
func signedServer(t *testing.T, s *signer.Signer, hits *int32) *httptest.Server {
	t.Helper()
	logger, _ := newLogger()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "gfs", r.URL.Query().Get("collection"))
		assert.Equal(t, "never", r.URL.Query().Get("trigger"))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(s.Middleware(logger, ok))
	t.Cleanup(srv.Close)
	return srv
}

func refusedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

func newRegistry(t *testing.T, servers ...string) *target.Registry {
	t.Helper()
	logger, _ := newLogger()
	reg, err := target.New(target.Config{Servers: servers, Timeout: 2 * time.Second}, logger)
	require.NoError(t, err)
	return reg
}

func TestSendTriggersContinuesPastRefusedTarget(t *testing.T) {
	s := signer.New([]byte("fanout-key"))
	var hits1, hits3 int32
	srv1 := signedServer(t, s, &hits1)
	srv3 := signedServer(t, s, &hits3)

	reg := newRegistry(t, srv1.URL, refusedAddr(t), srv3.URL)
	logger, hook := newLogger()
	f := New(reg, s, WithLogger(logger))

	results := f.SendTriggers(context.Background(), "gfs")
	require.Len(t, results, 3)

	assert.Equal(t, models.OutcomeAccepted, results[0].Outcome)
	assert.Equal(t, http.StatusOK, results[0].StatusCode)
	assert.Equal(t, models.OutcomeUnreachable, results[1].Outcome)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, models.OutcomeAccepted, results[2].Outcome)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits3))

	// Refused connections are logged quietly.
	var levels []logrus.Level
	for _, e := range hook.AllEntries() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []logrus.Level{logrus.InfoLevel, logrus.DebugLevel, logrus.InfoLevel}, levels)
}

func TestSendTriggersRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger, hook := newLogger()
	f := New(newRegistry(t, srv.URL), signer.New([]byte("k")), WithLogger(logger))

	results := f.SendTriggers(context.Background(), "gfs")
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeRejected, results[0].Outcome)
	assert.Equal(t, http.StatusInternalServerError, results[0].StatusCode)
	assert.False(t, results[0].OK())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSendTriggersTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	s := signer.New([]byte("k"))
	var hits int32
	after := signedServer(t, s, &hits)

	logger, hook := newLogger()
	f := New(newRegistry(t, srv.URL, after.URL), s, WithLogger(logger))

	results := f.SendTriggers(context.Background(), "gfs")
	require.Len(t, results, 2)
	assert.Equal(t, models.OutcomeFailed, results[0].Outcome)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, models.OutcomeAccepted, results[1].Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	assert.Equal(t, logrus.ErrorLevel, hook.AllEntries()[0].Level)
}

func TestLocalTokenCoversExactURL(t *testing.T) {
	s := signer.New([]byte("exact-url"))
	var token, uri string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = signer.TokenFromRequest(r)
		uri = r.URL.RequestURI()
	}))
	defer srv.Close()

	f := New(newRegistry(t, srv.URL), s)
	results := f.SendTriggers(context.Background(), "NAM 12km")
	require.Len(t, results, 1)
	require.True(t, results[0].OK())

	require.NotEmpty(t, token)
	valid, err := s.VerifySignatureGet(uri, token)
	require.NoError(t, err)
	assert.True(t, valid)

	// The same token does not cover another collection.
	valid, err = s.VerifySignatureGet("/thredds/local/collection/trigger?collection=other&trigger=never", token)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestWithRatePacesCalls(t *testing.T) {
	s := signer.New([]byte("k"))
	var hits int32
	srv := signedServer(t, s, &hits)

	f := New(newRegistry(t, srv.URL, srv.URL, srv.URL), s, WithRate(20))

	start := time.Now()
	results := f.SendTriggers(context.Background(), "gfs")
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	// Burst of one: the second and third calls wait 50ms each.
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestCancelledContextStillVisitsEveryTarget(t *testing.T) {
	s := signer.New([]byte("k"))
	var hits int32
	srv := signedServer(t, s, &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(newRegistry(t, srv.URL, srv.URL), s, WithRate(1))
	results := f.SendTriggers(ctx, "gfs")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, models.OutcomeFailed, r.Outcome)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestEmptyRegistry(t *testing.T) {
	f := New(newRegistry(t), signer.New([]byte("k")))
	assert.Empty(t, f.SendTriggers(context.Background(), "gfs"))
}
