package inventory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquash(t *testing.T) {
	tests := []struct {
		name  string
		host  string
		facts []Fact
		want  map[string]any
	}{
		{
			name:  "single fact",
			host:  "h1",
			facts: []Fact{{Name: "os", Value: "linux"}},
			want:  map[string]any{"os": "linux"},
		},
		{
			name:  "no facts",
			host:  "ghost",
			facts: nil,
			want:  map[string]any{},
		},
		{
			name: "duplicate names keep last value",
			host: "web1",
			facts: []Fact{
				{Name: "kernel", Value: "Linux"},
				{Name: "uptime_days", Value: float64(3)},
				{Name: "kernel", Value: "FreeBSD"},
			},
			want: map[string]any{"kernel": "FreeBSD", "uptime_days": float64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Squash(tt.host, tt.facts)
			assert.Equal(t, tt.host, doc.Name)
			assert.Equal(t, tt.host, doc.Certname)
			assert.Equal(t, tt.want, doc.Facts)
		})
	}
}

func TestSquashEncodesForemanPayload(t *testing.T) {
	doc := Squash("h1", []Fact{{Name: "os", Value: "linux"}})
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"h1","certname":"h1","facts":{"os":"linux"}}`, string(data))

	empty, err := json.Marshal(Squash("h2", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"h2","certname":"h2","facts":{}}`, string(empty))
}
