package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchTopic_TrailingWildcard(t *testing.T) {
	assert.True(t, MatchTopic("a/b/#", "a/b"))
	assert.True(t, MatchTopic("a/b/#", "a/b/c"))
	assert.True(t, MatchTopic("a/b/#", "a/b/c/d"))
	assert.False(t, MatchTopic("a/b/#", "a/x"))
}

func TestMatchTopic_SingleLevelWildcard(t *testing.T) {
	assert.True(t, MatchTopic("a/+/c", "a/b/c"))
	assert.False(t, MatchTopic("a/+/c", "a/c"))
	assert.False(t, MatchTopic("a/+/c", "a/b/d/c"))
}

func TestMatchTopic_Exact(t *testing.T) {
	assert.True(t, MatchTopic("sf/sensors/room1/temp", "sf/sensors/room1/temp"))
	assert.False(t, MatchTopic("sf/sensors/room1/temp", "sf/sensors/room1"))
	assert.False(t, MatchTopic("sf/sensors/room1", "sf/sensors/room1/temp"))
}

func TestMatchTopic_HashNotAtEndNeverMatches(t *testing.T) {
	assert.False(t, MatchTopic("a/#/c", "a/b/c"))
	assert.False(t, MatchTopic("a/#/c", "a/x/c"))
}

func TestMatchTopic_BareHash(t *testing.T) {
	assert.True(t, MatchTopic("#", "a"))
	assert.True(t, MatchTopic("#", "a/b/c"))
}

func TestExpandPattern(t *testing.T) {
	assert.Equal(t, "sf/users/alice/data", ExpandPattern("sf/users/${user}/data", "alice"))
	assert.Equal(t, "sf/users/alice/data", ExpandPattern("sf/users/${username}/data", "alice"))
	assert.Equal(t, "sf/users/alice/data", ExpandPattern("sf/users/${user_id}/data", "alice"))
	assert.Equal(t, "sf/static/topic", ExpandPattern("sf/static/topic", "alice"))
}
