package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prefix  string
		path    string
		want    string
		wantErr bool
	}{
		{name: "no prefix", path: "movieData.csv", want: "movieData.csv"},
		{name: "prefix", prefix: "moviecrawler", path: "movieData.csv", want: "moviecrawler/movieData.csv"},
		{name: "leading slash", prefix: "runs", path: "/2024/movieData.csv", want: "runs/2024/movieData.csv"},
		{name: "empty path", prefix: "runs", path: "  ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ObjectName(tc.prefix, tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
