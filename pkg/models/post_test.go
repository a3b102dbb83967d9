package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dv(s SourceKind, id int32, title string) DataVersion {
	return DataVersion{Source: s, ID: id, URL: "https://example.com", Title: title}
}

func TestNewPost(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPost(DefaultRegion, dv(APISource("P1"), 100, "【活動】X (7/1更新)"), now)

	assert.Equal(t, "X", p.MappedTitle)
	assert.Equal(t, DefaultRegion, p.Region)
	require.Len(t, p.Data, 1)
	assert.Len(t, p.ID, 40) // sha1 hex

	// Same inputs at a different instant must yield a different id.
	p2 := NewPost(DefaultRegion, dv(APISource("P1"), 100, "【活動】X (7/1更新)"), now.Add(time.Nanosecond))
	assert.NotEqual(t, p.ID, p2.ID)
}

func TestPost_AppendAndLookup(t *testing.T) {
	now := time.Now().UTC()
	p := NewPost(DefaultRegion, dv(APISource("P1"), 100, "X"), now)
	p.Append(dv(WebsiteSource(), 77, "X"))

	assert.True(t, p.HasSource(APISource("P1")))
	assert.True(t, p.HasSource(WebsiteSource()))
	assert.False(t, p.HasSource(CartoonSource()))
	assert.False(t, p.HasSource(APISource("P2")))

	assert.Equal(t, WebsiteSource(), p.Latest().Source)

	found := p.FindData(APISource("P1"), 100)
	require.NotNil(t, found)
	assert.Equal(t, int32(100), found.ID)
	assert.Nil(t, p.FindData(APISource("P1"), 101))
}

func TestPost_FindData_ReturnsMostRecent(t *testing.T) {
	now := time.Now().UTC()
	first := dv(APISource("P1"), 100, "X")
	first.UpdateTime = &now
	p := NewPost(DefaultRegion, first, now)

	later := now.Add(time.Hour)
	second := dv(APISource("P1"), 100, "X (更新)")
	second.UpdateTime = &later
	p.Append(second)

	found := p.FindData(APISource("P1"), 100)
	require.NotNil(t, found)
	assert.Equal(t, "X (更新)", found.Title)
}

func TestPost_LatestUpdateTime(t *testing.T) {
	now := time.Now().UTC()
	p := NewPost(DefaultRegion, dv(APISource("P1"), 100, "X"), now)
	assert.True(t, p.LatestUpdateTime().IsZero())

	earlier := now.Add(-time.Hour)
	d := dv(WebsiteSource(), 77, "X")
	d.UpdateTime = &earlier
	p.Append(d)
	assert.Equal(t, earlier, p.LatestUpdateTime())

	d2 := dv(CartoonSource(), 5, "X")
	d2.UpdateTime = &now
	p.Append(d2)
	assert.Equal(t, now, p.LatestUpdateTime())
}
