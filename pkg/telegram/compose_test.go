package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/redive-tools/newswatch/pkg/models"
)

func TestCompose_Full(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // 08:00 UTC+8
	dv := models.DataVersion{
		Source:     models.APISource("P1"),
		ID:         100,
		Title:      "【活動】夏日祭典 <test>",
		Tags:       []string{"活動", "轉蛋"},
		CreateTime: &created,
		ArchiveURL: "https://telegra.ph/x-01-01",
	}
	events := []models.Event{
		{
			Title: "活動",
			Start: time.Date(2024, 7, 15, 4, 0, 0, 0, time.UTC),  // 07/15 12:00 UTC+8
			End:   time.Date(2024, 7, 29, 3, 59, 0, 0, time.UTC), // 07/29 11:59 UTC+8
		},
	}

	got := Compose(dv, events)
	expected := "#活動 #轉蛋\n" +
		"<b>夏日祭典 &lt;test&gt;</b>\n" +
		"- 活動:\n   07/15 12:00 - 07/29 11:59\n" +
		"\n" +
		"https://telegra.ph/x-01-01\n" +
		"2024-01-01 08:00\n" +
		"<code>#100</code>"
	assert.Equal(t, expected, got)
}

func TestCompose_Minimal(t *testing.T) {
	dv := models.DataVersion{ID: 7, Title: "plain"}

	got := Compose(dv, nil)
	assert.Equal(t, "<b>plain</b>\n\n<code>#7</code>", got)
}

func TestCompose_CategoryOnlyTitleKeptWhole(t *testing.T) {
	// A title that is nothing but its category would otherwise render empty.
	dv := models.DataVersion{ID: 8, Title: "【公告】", Tags: []string{"公告"}}

	got := Compose(dv, nil)
	assert.Equal(t, "#公告\n<b>【公告】</b>\n\n<code>#8</code>", got)
}

func TestIsSilent(t *testing.T) {
	silent := []string{"維護", "メンテナンス"}

	assert.True(t, IsSilent("【公告】例行維護", silent))
	assert.False(t, IsSilent("【活動】夏日祭典", silent))
	assert.False(t, IsSilent("whatever", nil))
	assert.False(t, IsSilent("維護", []string{""}))
}
