package criteria

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, kind, content string) Criteria {
	t.Helper()
	c, err := New(kind, content)
	require.NoError(t, err)
	return c
}

func TestTrack(t *testing.T) {
	c := mustNew(t, "track", "streamapi,streaming api")

	tests := []struct {
		text string
		want bool
	}{
		{"streaming api rocks", true},      // second group: both words present
		{"I love StreamAPI", true},         // first group, case-insensitive
		{"streaming data all day", false},  // only half of the second group
		{"api first development", false},   // only half of the second group
		{"streamapifiedness", false},       // token match, not substring
	}
	for _, tt := range tests {
		payload := []byte(`{"text":"` + tt.text + `"}`)
		require.Equal(t, tt.want, c.Match(payload), "text %q", tt.text)
	}

	c = mustNew(t, "track", "foo,bar baz")
	require.False(t, c.Match([]byte(`{"text":"streaming api rocks"}`)))
}

func TestTrackRejectsEmptyContent(t *testing.T) {
	_, err := New("track", " , ")
	require.Error(t, err)
}

func TestFollow(t *testing.T) {
	c := mustNew(t, "follow", "alice,bob")

	require.True(t, c.Match([]byte(`{"author":"Alice"}`)))
	require.True(t, c.Match([]byte(`{"author":"carol","retweeted_by":"BOB"}`)))
	require.False(t, c.Match([]byte(`{"author":"carol","retweeted_by":""}`)))
	require.False(t, c.Match([]byte(`{"author":"carol"}`)))
}

func TestLocation(t *testing.T) {
	c := mustNew(t, "location", "0,20,10,30")

	require.True(t, c.Match([]byte(`{"geo":{"lon":10,"lat":20}}`)))
	require.False(t, c.Match([]byte(`{"geo":{"lon":25,"lat":20}}`)))
	// inclusive bounds
	require.True(t, c.Match([]byte(`{"geo":{"lon":0,"lat":30}}`)))
	// no geo data never matches
	require.False(t, c.Match([]byte(`{"geo":null}`)))
	require.False(t, c.Match([]byte(`{"text":"hi"}`)))
}

func TestLocationEmptyGeoObject(t *testing.T) {
	// a box containing the origin must not match a geo with no coordinates
	c := mustNew(t, "location", "-10,10,-10,10")
	require.False(t, c.Match([]byte(`{"geo":{}}`)))
	require.False(t, c.Match([]byte(`{"geo":{"lat":0}}`)))
	require.True(t, c.Match([]byte(`{"geo":{"lon":0,"lat":0}}`)))
}

func TestLocationMultipleBoxes(t *testing.T) {
	c := mustNew(t, "location", "0,10,0,10,100,110,100,110")
	require.True(t, c.Match([]byte(`{"geo":{"lon":105,"lat":105}}`)))
	require.False(t, c.Match([]byte(`{"geo":{"lon":50,"lat":50}}`)))
}

func TestLocationBadContent(t *testing.T) {
	_, err := New("location", "0,20,ten,30")
	require.Error(t, err)
	_, err = New("location", "0,20,10")
	require.Error(t, err)
}

func TestSamplingKinds(t *testing.T) {
	fire := mustNew(t, "firehose", "")
	for i := 0; i < 10; i++ {
		require.True(t, fire.Match([]byte(`{}`)))
	}

	garden := sample{n: 10, intn: func(n int) int { return 0 }}
	require.True(t, garden.Match(nil))
	garden.intn = func(n int) int { return 1 }
	require.False(t, garden.Match(nil))

	spritz, err := New("spritzer", "")
	require.NoError(t, err)
	require.Equal(t, 100, spritz.(sample).n)
}

func TestLinks(t *testing.T) {
	c := mustNew(t, "links", "")
	require.True(t, c.Match([]byte(`{"has_link":true}`)))
	require.False(t, c.Match([]byte(`{"has_link":false}`)))
	require.False(t, c.Match([]byte(`{}`)))
}

func TestUnknownKind(t *testing.T) {
	_, err := New("trending", "")
	require.ErrorIs(t, err, ErrUnknownKind)
}
