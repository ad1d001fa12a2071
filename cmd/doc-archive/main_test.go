package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGlobalArgs(t *testing.T) {
	tests := []struct {
		name       string
		argv       []string
		config     string
		archiveDir string
		command    string
		args       []string
	}{
		{"no flags", []string{"save", "f.pdf"}, "", "", "save", []string{"f.pdf"}},
		{"equals form", []string{"--config=x.yaml", "save", "f.pdf"}, "x.yaml", "", "save", []string{"f.pdf"}},
		{"space form", []string{"--config", "x.yaml", "save", "f.pdf"}, "x.yaml", "", "save", []string{"f.pdf"}},
		{"both flags", []string{"-archive-dir", "/srv/a", "--config", "c.yaml", "stats"}, "c.yaml", "/srv/a", "stats", []string{}},
		{"command flags untouched", []string{"search", "-fuzzy", "deploy~2"}, "", "", "search", []string{"-fuzzy", "deploy~2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseGlobalArgs(tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.config, opts.configPath)
			assert.Equal(t, tt.archiveDir, opts.archiveDir)
			assert.Equal(t, tt.command, opts.command)
			assert.Equal(t, tt.args, opts.args)
		})
	}
}

func TestParseGlobalArgsErrors(t *testing.T) {
	_, err := parseGlobalArgs(nil)
	assert.Error(t, err)

	_, err = parseGlobalArgs([]string{"--config=x.yaml"})
	assert.Error(t, err)

	_, err = parseGlobalArgs([]string{"--unknown", "save"})
	assert.Error(t, err)
}
