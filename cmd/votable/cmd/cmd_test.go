package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/votable/pkg/api"
	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/di"
	"github.com/ssargent/votable/pkg/fits"
)

const sampleDoc = `<?xml version="1.0"?>
<VOTABLE version="1.3" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
 <RESOURCE>
  <TABLE name="stars">
   <PARAM name="epoch" datatype="double" value="2000.0"/>
   <FIELD name="id" datatype="int"/>
   <FIELD name="name" datatype="char" arraysize="*" ucd="meta.id"/>
   <FIELD name="flag" datatype="char"/>
   <DATA><TABLEDATA>
    <TR><TD>1</TD><TD>Vega</TD><TD>A</TD></TR>
    <TR><TD>2</TD><TD>Deneb</TD><TD>B</TD></TR>
    <TR><TD></TD><TD>Rigel</TD><TD>C</TD></TR>
   </TABLEDATA></DATA>
  </TABLE>
  <TABLE name="empty">
   <FIELD name="x" datatype="float"/>
  </TABLE>
 </RESOURCE>
</VOTABLE>`

// resetFlags puts every flag of c and its children back to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCommand executes the root command with args and returns what it printed.
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() { resetFlags(rootCmd) })

	err := rootCmd.ExecuteContext(context.Background())
	resetFlags(rootCmd)
	return out.String(), err
}

// writeConfig saves a configuration using dir for the spool.
func writeConfig(t *testing.T, dir string, edit func(cfg *config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.SpoolDir = filepath.Join(dir, "spool")
	cfg.Logging.Level = "error"
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return path
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.vot")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0600))
	return path
}

func TestTablesCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)
	sample := writeSample(t, dir)

	t.Run("text", func(t *testing.T) {
		out, err := runCommand(t, "", "tables", "--config", cfgPath, sample)
		require.NoError(t, err)
		assert.Contains(t, out, "votable, VOTable 1.3")
		assert.Regexp(t, `0\s+stars\s+3\s+3`, out)
		assert.Regexp(t, `1\s+empty\s+0\s+1`, out)
		assert.NotContains(t, out, "PARAM")
	})

	t.Run("columns", func(t *testing.T) {
		out, err := runCommand(t, "", "tables", "--config", cfgPath, "--columns", sample)
		require.NoError(t, err)
		assert.Contains(t, out, "PARAM epoch = 2000")
		assert.Regexp(t, `name\s+char\s+\*\s+meta\.id`, out)
	})

	t.Run("json from stdin", func(t *testing.T) {
		out, err := runCommand(t, sampleDoc, "tables", "--config", cfgPath, "--json", "-")
		require.NoError(t, err)
		var summary api.DocumentSummary
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		assert.Equal(t, "1.3", summary.Version)
		require.Len(t, summary.Tables, 2)
		assert.Equal(t, int64(3), summary.Tables[0].Rows)
		assert.Equal(t, "rune", summary.Tables[0].Columns[2].Class)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := runCommand(t, "", "tables", "--config", cfgPath, filepath.Join(dir, "nope.vot"))
		assert.Error(t, err)
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := runCommand(t, "", "tables", "--config", filepath.Join(dir, "nope.yaml"), sample)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})
}

func TestCatCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)
	sample := writeSample(t, dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"all rows", nil, "id\tname\tflag\n1\tVega\tA\n2\tDeneb\tB\n\tRigel\tC\n"},
		{"limit", []string{"--limit", "1"}, "id\tname\tflag\n1\tVega\tA\n"},
		{"no header", []string{"--no-header", "-n", "2"}, "1\tVega\tA\n2\tDeneb\tB\n"},
		{"empty table", []string{"--table", "1"}, "x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"cat", "--config", cfgPath}, tt.args...)
			out, err := runCommand(t, "", append(args, sample)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	t.Run("missing table", func(t *testing.T) {
		_, err := runCommand(t, "", "cat", "--config", cfgPath, "--table", "5", sample)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table 5 not found")
	})

	t.Run("gzipped input", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(sampleDoc))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		gz := filepath.Join(dir, "sample.vot.gz")
		require.NoError(t, os.WriteFile(gz, buf.Bytes(), 0600))

		out, err := runCommand(t, "", "cat", "--config", cfgPath, "-n", "1", gz)
		require.NoError(t, err)
		assert.Equal(t, "id\tname\tflag\n1\tVega\tA\n", out)
	})
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)
	sample := writeSample(t, dir)
	wantRows := "id\tname\tflag\n1\tVega\tA\n2\tDeneb\tB\n\tRigel\tC\n"

	for _, format := range []string{"tabledata", "binary", "binary2", "fits", "fits-plus", "colfits-plus"} {
		t.Run(format, func(t *testing.T) {
			out := filepath.Join(dir, "out-"+format)
			_, err := runCommand(t, "", "convert", "--config", cfgPath, "--format", format, sample, out)
			require.NoError(t, err)

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			switch format {
			case "fits-plus":
				assert.True(t, fits.IsFitsPlus(data))
			case "colfits-plus":
				assert.True(t, fits.IsColfitsPlus(data))
			default:
				assert.Contains(t, string(data), "<"+strings.ToUpper(format)+">")
			}

			rows, err := runCommand(t, "", "cat", "--config", cfgPath, out)
			require.NoError(t, err)
			assert.Equal(t, wantRows, rows)
		})
	}

	t.Run("stdout with version", func(t *testing.T) {
		out, err := runCommand(t, "", "convert", "--config", cfgPath, "-f", "binary", "-V", "1.1", sample)
		require.NoError(t, err)
		assert.Contains(t, out, `version="1.1"`)
		assert.Contains(t, out, "<BINARY>")
	})

	t.Run("binary2 needs 1.3", func(t *testing.T) {
		_, err := runCommand(t, "", "convert", "--config", cfgPath, "-f", "binary2", "-V", "1.2", sample)
		assert.Error(t, err)
	})

	t.Run("href mode", func(t *testing.T) {
		hrefDir := filepath.Join(dir, "href")
		require.NoError(t, os.MkdirAll(hrefDir, 0750))
		out := filepath.Join(hrefDir, "survey.vot")
		_, err := runCommand(t, "", "convert", "--config", cfgPath, "-f", "binary", "-m", "href", sample, out)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(hrefDir, "survey-1.bin"))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `href="survey-1.bin"`)

		rows, err := runCommand(t, "", "cat", "--config", cfgPath, out)
		require.NoError(t, err)
		assert.Equal(t, wantRows, rows)
	})

	t.Run("href mode needs a file", func(t *testing.T) {
		_, err := runCommand(t, "", "convert", "--config", cfgPath, "-f", "binary", "-m", "href", sample)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output file")
	})

	t.Run("bad table data", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.vot")
		doc := `<VOTABLE version="1.3"><RESOURCE><TABLE><FIELD name="a" datatype="int"/>
<DATA><BINARY><STREAM encoding="base64">AAAA</STREAM></BINARY></DATA></TABLE></RESOURCE></VOTABLE>`
		require.NoError(t, os.WriteFile(bad, []byte(doc), 0600))
		_, err := runCommand(t, "", "convert", "--config", cfgPath, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table 0")
	})
}

func TestStoragePolicies(t *testing.T) {
	for _, policy := range []string{config.StorageTree, config.StorageMemory, config.StorageDisk} {
		t.Run(policy, func(t *testing.T) {
			dir := t.TempDir()
			cfgPath := writeConfig(t, dir, func(cfg *config.Config) { cfg.Storage.Policy = policy })
			sample := writeSample(t, dir)

			out, err := runCommand(t, "", "tables", "--config", cfgPath, "--json", sample)
			require.NoError(t, err)
			var summary api.DocumentSummary
			require.NoError(t, json.Unmarshal([]byte(out), &summary))
			require.Len(t, summary.Tables, 2)
			assert.Equal(t, int64(3), summary.Tables[0].Rows)
			assert.Empty(t, summary.Tables[0].Error)
		})
	}
}

func TestSniffCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)
	sample := writeSample(t, dir)
	plus := filepath.Join(dir, "sample.fits")
	_, err := runCommand(t, "", "convert", "--config", cfgPath, "-f", "fits-plus", sample, plus)
	require.NoError(t, err)
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0600))

	out, err := runCommand(t, "", "sniff", "--config", cfgPath, sample, plus, text)
	require.NoError(t, err)
	assert.Equal(t, sample+": VOTable\n"+plus+": fits-plus\n"+text+": unknown\n", out)

	_, err = runCommand(t, "", "sniff", "--config", cfgPath, filepath.Join(dir, "nope"))
	assert.Error(t, err)
}

func TestSpoolCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, nil)
	sample := writeSample(t, dir)

	out, err := runCommand(t, "", "spool", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No tables spooled")

	out, err = runCommand(t, "", "spool", "add", "--config", cfgPath, sample)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[0])[0]
	assert.Contains(t, lines[0], "stars")
	assert.Contains(t, lines[0], "3 rows")

	out, err = runCommand(t, "", "spool", "ls", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "empty")

	out, err = runCommand(t, "", "spool", "cat", "--config", cfgPath, "-n", "2", id)
	require.NoError(t, err)
	assert.Equal(t, "id\tname\tflag\n1\tVega\tA\n2\tDeneb\tB\n", out)

	out, err = runCommand(t, "", "spool", "rm", "--config", cfgPath, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	_, err = runCommand(t, "", "spool", "cat", "--config", cfgPath, id)
	assert.Error(t, err)
	_, err = runCommand(t, "", "spool", "rm", "--config", cfgPath, "not-an-id")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conf", "votable.yaml")

	out, err := runCommand(t, "", "init", "--config", cfgPath, "--spool-dir", filepath.Join(dir, "spool"), "--policy", "disk")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+cfgPath)

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Len(t, cfg.Security.APIKey, 64)
	assert.Contains(t, out, "API key: "+cfg.Security.APIKey)

	_, err = runCommand(t, "", "init", "--config", cfgPath)
	assert.Error(t, err)

	assert.Equal(t, config.StorageDisk, cfg.Storage.Policy)
	assert.Equal(t, filepath.Join(dir, "spool"), cfg.Storage.SpoolDir)

	_, err = initConfig(cfgPath, "", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	again, err := initConfig(cfgPath, "", "", true)
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Security.APIKey, again.Security.APIKey)

	_, err = initConfig(filepath.Join(dir, "other.yaml"), "", "bogus", false)
	assert.Error(t, err)
}

// serveCall records what serve handed to the starter.
type serveCall struct {
	called bool
	spool  bool
	config api.ServerConfig
}

type mockServerStarter struct {
	config serveCall
}

func (m *mockServerStarter) StartServer(ctx context.Context, spool api.TableSpool, sc api.ServerConfig) error {
	m.config = serveCall{called: true, spool: spool != nil, config: sc}
	return nil
}

type mockServerFactory struct {
	starter *mockServerStarter
}

func (f *mockServerFactory) CreateServerStarter() api.ServerStarter {
	return f.starter
}

func TestServeCommand(t *testing.T) {
	starter := &mockServerStarter{}
	container := di.NewContainer(log)
	container.SetServerFactory(&mockServerFactory{starter: starter})
	SetContainer(container)
	t.Cleanup(func() { SetContainer(nil) })

	t.Run("generated key", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir, nil)
		out, err := runCommand(t, "", "serve", "--config", cfgPath, "--port", "9000")
		require.NoError(t, err)

		require.True(t, starter.config.called)
		assert.False(t, starter.config.spool)
		assert.Equal(t, 9000, starter.config.config.Port)
		assert.Equal(t, "127.0.0.1", starter.config.config.Bind)
		assert.Len(t, starter.config.config.APIKey, 64)
		assert.Contains(t, out, "Generated API key for this run: "+starter.config.config.APIKey)
	})

	t.Run("configured key and spool", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir, func(cfg *config.Config) {
			cfg.Security.APIKey = "configured-key"
			cfg.Storage.Policy = config.StorageDisk
			cfg.Write.Format = "binary2"
		})
		out, err := runCommand(t, "", "serve", "--config", cfgPath)
		require.NoError(t, err)

		assert.True(t, starter.config.spool)
		assert.Equal(t, "configured-key", starter.config.config.APIKey)
		assert.Equal(t, 8080, starter.config.config.Port)
		assert.Equal(t, "BINARY2", starter.config.config.Writer.Format.String())
		assert.NotContains(t, out, "Generated API key")
		assert.DirExists(t, filepath.Join(dir, "spool"))
	})

	t.Run("container not initialized", func(t *testing.T) {
		SetContainer(nil)
		defer SetContainer(container)
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir, nil)
		_, err := runCommand(t, "", "serve", "--config", cfgPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dependency container not initialized")
	})
}
