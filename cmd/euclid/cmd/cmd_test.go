package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/psantana5/euclid/internal/tlsconfig"
	"github.com/psantana5/euclid/pkg/api"
	"github.com/psantana5/euclid/pkg/auth"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	flags := rootCmd.PersistentFlags()
	require.NoError(t, flags.Set("output", "table"))
	require.NoError(t, flags.Set("server", ""))
	require.NoError(t, flags.Set("api-key", ""))
	cfgFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestGCDLocal(t *testing.T) {
	out, err := execute(t, "", "gcd", "2805", "272745", "-o", "json")
	require.NoError(t, err)

	var c models.Computation
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, uint64(165), c.Result)
	assert.Empty(t, c.ID, "local computations are not recorded")
}

func TestGCDUsageExamples(t *testing.T) {
	tests := []struct {
		n, m string
		want uint64
	}{
		{"14", "15", 1},
		{"2805", "272745", 165},
		{"6", "9", 3},
		{"5610", "57057", 33},
	}

	for _, tt := range tests {
		t.Run(tt.n+"_"+tt.m, func(t *testing.T) {
			out, err := execute(t, "", "gcd", tt.n, tt.m, "-o", "json")
			require.NoError(t, err)

			var c models.Computation
			require.NoError(t, json.Unmarshal([]byte(out), &c))
			assert.Equal(t, tt.want, c.Result)
		})
	}
}

func TestGCDTable(t *testing.T) {
	out, err := execute(t, "", "gcd", "6", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "3")
}

func TestGCDRejectsZero(t *testing.T) {
	_, err := execute(t, "", "gcd", "0", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestGCDRejectsMalformedOperand(t *testing.T) {
	_, err := execute(t, "", "gcd", "twelve", "5")
	assert.Error(t, err)
}

func TestBatchFromStdin(t *testing.T) {
	input := "# pairs\n14 15\n\n6,9\n0 3\n"
	out, err := execute(t, input, "batch", "-o", "json")
	require.Error(t, err, "a failed pair makes the command fail")
	assert.Contains(t, err.Error(), "1 of 3")

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, uint64(1), resp.Results[0].Result)
	assert.Equal(t, uint64(3), resp.Results[1].Result)
	assert.NotEmpty(t, resp.Results[2].Error)
}

func TestBatchParseError(t *testing.T) {
	_, err := execute(t, "1 2\nnot a pair\n", "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func apiRouter() *mux.Router {
	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(&bytes.Buffer{})
	router := mux.NewRouter()
	api.NewHandler(store.NewMemoryStore(), logger, api.Options{BatchWorkers: 2}).RegisterRoutes(router)
	return router
}

func TestRemoteCommands(t *testing.T) {
	srv := httptest.NewServer(apiRouter())
	defer srv.Close()

	out, err := execute(t, "", "gcd", "12", "18", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	var c models.Computation
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, uint64(6), c.Result)
	assert.NotEmpty(t, c.ID)

	out, err = execute(t, "", "history", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	var history []models.Computation
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, c.ID, history[0].ID)

	out, err = execute(t, "", "stats", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(0), stats.Coprime)
}

func TestHistoryNeedsServer(t *testing.T) {
	_, err := execute(t, "", "history")
	assert.ErrorIs(t, err, errNoServer)
}

func TestConfigShowRedacts(t *testing.T) {
	out, err := execute(t, "", "config", "show", "--api-key", "topsecret")
	require.NoError(t, err)
	assert.NotContains(t, out, "topsecret")
	assert.Contains(t, out, "REDACTED")
	assert.Contains(t, out, "8080")
}

func TestConfigHashKey(t *testing.T) {
	out, err := execute(t, "", "config", "hash-key", "s3cret")
	require.NoError(t, err)

	v, err := auth.NewVerifier("", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.NoError(t, v.Verify("Bearer s3cret"))
}

func TestRemoteOverTLS(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "euclid.crt")
	key := filepath.Join(dir, "euclid.key")

	out, err := execute(t, "", "config", "self-signed", "--cert", cert, "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, cert)

	serverTLS, err := tlsconfig.Server(cert, key, "")
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(apiRouter())
	srv.TLS = serverTLS
	srv.StartTLS()
	defer srv.Close()

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("client:\n  ca_file: "+cert+"\n"), 0644))

	out, err = execute(t, "", "gcd", "4", "6", "--server", srv.URL, "--config", cfgPath, "-o", "json")
	require.NoError(t, err)
	var c models.Computation
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, uint64(2), c.Result)
}
