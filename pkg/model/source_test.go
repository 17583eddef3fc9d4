package model

import (
	"encoding/json"
	"testing"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceMarshalURL(t *testing.T) {
	src := Source{Origin: Origin{Kind: OriginURL, URL: "https://example.com/a.tar.gz"}, Location: "a"}
	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com/a.tar.gz","location":"a"}`, string(data))
}

func TestSourceMarshalGit(t *testing.T) {
	src := Source{Origin: Origin{Kind: OriginGit, URL: "https://example.com/a.git", Branch: "main"}, Location: "a"}
	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.JSONEq(t, `{"git_url":"https://example.com/a.git","branch":"main","location":"a"}`, string(data))
}

func TestSourceRoundTripLocal(t *testing.T) {
	src := Source{Origin: Origin{Kind: OriginLocal, Path: "./vendor/a"}, Location: "a"}
	data, err := json.Marshal(src)
	require.NoError(t, err)

	var got Source
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, src, got)
}

func TestSourceUnmarshalRejectsAmbiguous(t *testing.T) {
	var src Source
	err := json.Unmarshal([]byte(`{"url":"a","path":"b","location":"l"}`), &src)
	require.Error(t, err)
	assert.ErrorIs(t, err, blimperr.ErrInvalidDescriptor)
}

func TestSourceUnmarshalRejectsEmpty(t *testing.T) {
	var src Source
	err := json.Unmarshal([]byte(`{"location":"l"}`), &src)
	require.Error(t, err)
	assert.ErrorIs(t, err, blimperr.ErrInvalidDescriptor)
}

func TestSourceUnmarshalInvalidJSON(t *testing.T) {
	var src Source
	err := json.Unmarshal([]byte(`not json`), &src)
	require.Error(t, err)
	assert.ErrorIs(t, err, blimperr.ErrInvalidDescriptor)
}
