package webjob

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		JobName:       "scm-uploader",
		AgentID:       "scm",
		ContainerName: "agent-scm",
		IndexName:     "scm-docs",
		WatchFolder:   "/data/incoming",
	}
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	members := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		members[f.Name] = string(content)
	}
	return members
}

func TestPackageContinuousJob(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	data, err := g.Package(testConfig())
	require.NoError(t, err)
	members := readArchive(t, data)

	for _, name := range []string{"run.py", "run.sh", "run.cmd", "requirements.txt", "config.json", "README.md"} {
		assert.Contains(t, members, name)
	}
	assert.NotContains(t, members, "settings.job")

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(members["config.json"]), &cfg))
	assert.Equal(t, "agent-scm", cfg.ContainerName)
	assert.Equal(t, "scm-docs", cfg.IndexName)

	assert.Contains(t, members["run.py"], "AZURE_STORAGE_CONNECTION_STRING")
	assert.Contains(t, members["run.py"], "scm-uploader")
	assert.Contains(t, members["run.sh"], "python3 run.py")
	assert.Contains(t, members["README.md"], "scm-docs-indexer")
}

func TestPackageScheduledJob(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Scheduled = true
	cfg.Schedule = "0 0 3 * * *"
	data, err := g.Package(cfg)
	require.NoError(t, err)
	members := readArchive(t, data)

	require.Contains(t, members, "settings.job")
	var settings map[string]string
	require.NoError(t, json.Unmarshal([]byte(members["settings.job"]), &settings))
	assert.Equal(t, "0 0 3 * * *", settings["schedule"])
	assert.Contains(t, members["README.md"], "triggered (scheduled)")
}

func TestPackageMemberOrderIsDeterministic(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	data, err := g.Package(testConfig())
	require.NoError(t, err)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"run.py", "run.sh", "run.cmd", "requirements.txt", "config.json", "README.md"}, names)
}

func TestPackageValidation(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.JobName = ""
	_, err = g.Package(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Scheduled = true
	_, err = g.Package(cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cron"))
}

func TestPackageNoEmbeddedSecrets(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	data, err := g.Package(testConfig())
	require.NoError(t, err)
	for name, content := range readArchive(t, data) {
		assert.NotContains(t, content, "AccountKey=", "member %s must not embed credentials", name)
	}
}
