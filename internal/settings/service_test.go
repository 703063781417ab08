package settings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
)

func TestMemoryRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.Put(ctx, "widget.title", json.RawMessage(`"Help"`))
	require.NoError(t, err)
	s, err := repo.Put(ctx, "widget.title", json.RawMessage(`"Support"`))
	require.NoError(t, err)
	assert.JSONEq(t, `"Support"`, string(s.Value))

	_, err = repo.Put(ctx, "a_first", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a_first", all[0].Key)

	require.NoError(t, repo.Delete(ctx, "widget.title"))
	_, err = repo.Get(ctx, "widget.title")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(repo.Delete(ctx, "widget.title"), apperr.KindNotFound))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		ok    bool
	}{
		{"valid", "rate.limit", `60`, true},
		{"uppercase key", "Rate", `60`, false},
		{"empty key", "", `60`, false},
		{"invalid json", "k", `{`, false},
		{"empty value", "k", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.key, json.RawMessage(tt.value))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindValidation))
			}
		})
	}
}
