package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/core/repository"
	"gut-health-kb/internal/infrastructure/config"
	"gut-health-kb/internal/infrastructure/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inulinDocument = `{
	"ingredient": {"name": "Inulin", "category": "prebiotic"},
	"microbiome_effects": [],
	"metabolic_effects": [],
	"symptom_effects": [],
	"citations": [],
	"interactions": []
}`

// sqliteFactory 回傳共用同一個記憶體資料庫的執行器
func sqliteFactory(t *testing.T) (runnerFactory, repository.IngredientRepo) {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	repo := repository.NewIngredientRepo(db, repository.Options{})
	return func(context.Context) (*importer.Runner, func() error, error) {
		return importer.NewRunner(repo, nil), func() error { return nil }, nil
	}, repo
}

func execute(t *testing.T, open runnerFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCommand(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	return dir
}

func TestCommandTree(t *testing.T) {
	cmd := rootCommand(nil)

	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"single", "batch", "validate"}, names)

	for _, flag := range []string{"dry-run", "update-existing", "skip-duplicates", "force-import", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestSingleImport(t *testing.T) {
	open, repo := sqliteFactory(t)
	dir := writeDir(t, map[string]string{"inulin.json": inulinDocument})

	out, err := execute(t, open, "single", filepath.Join(dir, "inulin.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "successful: 1")
	assert.Contains(t, out, "[created]")

	ing, err := repo.GetByName(context.Background(), "inulin")
	require.NoError(t, err)
	assert.Equal(t, "Inulin", ing.Name)

	// 第二次匯入同名成分會失敗
	_, err = execute(t, open, "single", filepath.Join(dir, "inulin.json"))
	assert.Error(t, err)

	out, err = execute(t, open, "--skip-duplicates", "single", filepath.Join(dir, "inulin.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "skipped: 1")
}

func TestBatchDryRun(t *testing.T) {
	open, repo := sqliteFactory(t)
	dir := writeDir(t, map[string]string{"inulin.json": inulinDocument})

	out, err := execute(t, open, "batch", dir, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")

	_, err = repo.GetByName(context.Background(), "inulin")
	assert.Error(t, err)
}

func TestValidateReportsFailures(t *testing.T) {
	open, _ := sqliteFactory(t)
	dir := writeDir(t, map[string]string{
		"inulin.json": inulinDocument,
		"broken.json": `{"ingredient": {"name": "Zinc"}}`,
	})

	out, err := execute(t, open, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed: 1")
	assert.Contains(t, out, "Errors:")
	assert.Contains(t, out, "broken.json")
}

func TestConflictingFlags(t *testing.T) {
	open, _ := sqliteFactory(t)
	_, err := execute(t, open, "--force-import", "--skip-duplicates", "batch", t.TempDir())
	assert.Error(t, err)
}

func TestMissingArgument(t *testing.T) {
	open, _ := sqliteFactory(t)
	_, err := execute(t, open, "single")
	assert.Error(t, err)
}

func TestJSONOutput(t *testing.T) {
	open, _ := sqliteFactory(t)
	dir := writeDir(t, map[string]string{"inulin.json": inulinDocument})

	out, err := execute(t, open, "batch", dir, "--dry-run", "--json")
	require.NoError(t, err)

	var got struct {
		Summary struct {
			TotalProcessed int `json:"total_processed"`
			Successful     int `json:"successful"`
		} `json:"summary"`
		DryRun   bool `json:"dry_run"`
		Outcomes []struct {
			Source string `json:"source"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.DryRun)
	assert.Equal(t, 1, got.Summary.TotalProcessed)
	assert.Equal(t, 1, got.Summary.Successful)
	require.Len(t, got.Outcomes, 1)
	assert.NotContains(t, out, "Import summary")
}
