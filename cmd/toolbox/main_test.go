package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-issue-bot/internal/models"
)

func TestApplySettings(t *testing.T) {
	doc := models.NewBotConfig()
	doc.RepoOwner = "octo"

	err := applySettings(doc, "111111111111111111", "", "", "game", "1234", "5678")
	require.NoError(t, err)

	assert.Equal(t, "111111111111111111", doc.Root.String())
	assert.True(t, doc.ErrorChannel.IsZero())
	assert.Equal(t, "octo", doc.RepoOwner)
	assert.Equal(t, "game", doc.RepoName)
	assert.True(t, doc.GitHubAppConfigured())
}

func TestApplySettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		appID   string
		wantErr error
	}{
		{name: "root not numeric", root: "alice", wantErr: models.ErrInvalidSnowflake},
		{name: "app id not numeric", appID: "abc", wantErr: models.ErrInvalidAppID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := applySettings(models.NewBotConfig(), tt.root, "", "", "", tt.appID, "")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
