package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/rentroll/internal/models"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("AI_ENABLED", "false")
	t.Setenv("CACHE_BACKEND", "memory")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const rollCSV = "Unit,Tenant,Rent,Status\n101,Jane Doe,1500,Occupied\n102,,0,Vacant\nTOTAL,,1500,\n"

func TestProcessCmd_Stdout(t *testing.T) {
	input := writeInput(t, "roll.csv", rollCSV)

	stdout, _, err := execute(t, "process", input)

	require.NoError(t, err)
	var result models.ProcessingResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Summary.TotalUnits)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, "roll", result.Sheets[0].SheetName)
	assert.Equal(t, models.SourceHeuristic, result.Sheets[0].Headers.Source)
}

func TestProcessCmd_TenantsOnlyToFile(t *testing.T) {
	input := writeInput(t, "roll.csv", rollCSV)
	output := filepath.Join(t.TempDir(), "tenants.json")

	stdout, _, err := execute(t, "process", input, "--tenants-only", "--pretty", "--output", output)

	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")

	var tenants []models.ExtractedTenantData
	require.NoError(t, json.Unmarshal(data, &tenants))
	require.Len(t, tenants, 1)
	assert.Equal(t, "Jane Doe", tenants[0].TenantName)
	assert.Equal(t, "101", tenants[0].UnitNumber)
	assert.NotEmpty(t, tenants[0].ID)
}

func TestProcessCmd_CacheDB(t *testing.T) {
	input := writeInput(t, "roll.csv", rollCSV)
	cacheDB := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 2; i++ {
		_, _, err := execute(t, "process", input, "--cache-db", cacheDB, "--no-ai")
		require.NoError(t, err)
	}

	_, err := os.Stat(cacheDB)
	assert.NoError(t, err)
}

func TestProcessCmd_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "process", filepath.Join(t.TempDir(), "absent.csv"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file not found")
	})

	t.Run("no arguments", func(t *testing.T) {
		_, _, err := execute(t, "process")
		assert.Error(t, err)
	})

	t.Run("nothing extracted", func(t *testing.T) {
		input := writeInput(t, "notes.csv", "Call the leasing office\nMonday to Friday\n")

		stdout, stderr, err := execute(t, "process", input)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no rent roll data extracted from notes.csv")
		assert.Contains(t, stderr, `Sheet "notes": could not detect header row`)

		var result models.ProcessingResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &result))
		assert.False(t, result.Success)
	})

	t.Run("unsupported file", func(t *testing.T) {
		input := writeInput(t, "scan.pdf", "%PDF-1.7\x00\x01\x02")

		_, stderr, err := execute(t, "process", input)

		require.Error(t, err)
		assert.True(t, strings.Contains(stderr, "unsupported file type"), stderr)
	})
}
