package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	udftest "github.com/bgrewell/udf-kit/internal/testing"
	"github.com/bgrewell/udf-kit/pkg/config"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/udf"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressMessage(t *testing.T) {
	msg := progressMessage("docs/readme.txt", 50, 200, 2, 7, 80, 12)
	assert.Equal(t, " [2/7] docs/readme.txt - 25.00% (12%)", msg)

	long := strings.Repeat("directory/", 20) + "file.bin"
	msg = progressMessage(long, 0, 0, 1, 1, 40, 0)
	assert.True(t, strings.HasPrefix(msg, " [1/1] ..."))
	assert.True(t, strings.HasSuffix(msg, "file.bin - 100.00% (0%)"))
	assert.LessOrEqual(t, len(msg), 40)
}

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	opts = rootOptions{}

	cmd := &cobra.Command{}
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "")
	cmd.Flags().CountVarP(&opts.verbosity, "verbose", "v", "")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "")
	cmd.Flags().BoolVar(&opts.digests, "digests", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"-o", "/tmp/out", "-vv", "--digests"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", cfg.Extract.OutputDir)
	assert.Equal(t, logging.LEVEL_TRACE, cfg.Verbosity())
	assert.True(t, cfg.Extract.Digests)
	assert.False(t, cfg.Extract.RequireBlank)
}

func TestPrepareDestination(t *testing.T) {
	b := udftest.NewImageBuilder(udftest.File("setup.exe", []byte("MZ")))
	imagePath := filepath.Join(t.TempDir(), "image.udf")
	require.NoError(t, b.Write(imagePath))

	image := udf.New(imagePath)
	ok, err := image.Open()
	require.NoError(t, err)
	require.True(t, ok)

	cfg := config.Default()
	cfg.Extract.OutputDir = filepath.Join(t.TempDir(), "new", "out")
	require.NoError(t, prepareDestination(cfg, imagePath, image, logging.DefaultLogger()))
	assert.DirExists(t, cfg.Extract.OutputDir)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Extract.OutputDir, "setup.exe"), nil, 0644))
	assert.NoError(t, prepareDestination(cfg, imagePath, image, logging.DefaultLogger()))

	cfg.Extract.RequireBlank = true
	assert.Error(t, prepareDestination(cfg, imagePath, image, logging.DefaultLogger()))
}
