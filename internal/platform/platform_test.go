package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalIDsGetNil(t *testing.T) {
	var ids ExternalIDs
	assert.Equal(t, "", ids.Get(Todoist))
}

func TestExternalIDsWithCopies(t *testing.T) {
	orig := ExternalIDs{Clickup: "abc"}
	next := orig.With(Todoist, "123")

	assert.Equal(t, "123", next.Get(Todoist))
	assert.Equal(t, "abc", next.Get(Clickup))
	assert.Equal(t, "", orig.Get(Todoist), "original must not be mutated")
}

func TestExternalIDsDiff(t *testing.T) {
	tests := []struct {
		name  string
		ids   ExternalIDs
		other ExternalIDs
		want  ExternalIDs
	}{
		{"both empty", nil, nil, nil},
		{"new entry", ExternalIDs{Todoist: "1"}, nil, ExternalIDs{Todoist: "1"}},
		{"same entry", ExternalIDs{Todoist: "1"}, ExternalIDs{Todoist: "1"}, nil},
		{"changed entry", ExternalIDs{Todoist: "2"}, ExternalIDs{Todoist: "1"}, ExternalIDs{Todoist: "2"}},
		{"unset on receiver", nil, ExternalIDs{Todoist: "1"}, nil},
		{"empty value ignored", ExternalIDs{Todoist: ""}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ids.Diff(tt.other))
		})
	}
}
