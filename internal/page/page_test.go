package page

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func events(n int) []evidence.DriftEvent {
	out := make([]evidence.DriftEvent, n)
	for i := range out {
		out[i] = evidence.DriftEvent{
			DriftEventID: fmt.Sprintf("ev-%04d", i),
			ObjectType:   evidence.TypeField,
			ObjectID:     fmt.Sprintf("f-%04d", i%7),
			ChangeType:   evidence.ChangeAdded,
			ToCapturedAt: t0.Add(time.Duration(i%3) * time.Hour),
		}
	}
	return out
}

func TestEventsOrder(t *testing.T) {
	items := []evidence.DriftEvent{
		{DriftEventID: "a", ObjectType: evidence.TypeWorkflow, ObjectID: "wf-1", ToCapturedAt: t0},
		{DriftEventID: "b", ObjectType: evidence.TypeField, ObjectID: "f-2", ToCapturedAt: t0},
		{DriftEventID: "c", ObjectType: evidence.TypeField, ObjectID: "f-1", ToCapturedAt: t0},
		{DriftEventID: "d", ObjectType: evidence.TypeWorkflow, ObjectID: "wf-0", ToCapturedAt: t0.Add(time.Hour)},
	}
	res, err := Page(items, Events, 0, 10)
	require.NoError(t, err)

	var ids []string
	for _, e := range res.Items {
		ids = append(ids, e.DriftEventID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)
	assert.False(t, res.HasMore)
	assert.Empty(t, res.NextCursor)
}

func TestRunsOrder(t *testing.T) {
	items := []evidence.MetricsRun{
		{RunID: "r-2", ComputedAt: t0},
		{RunID: "r-3", ComputedAt: t0.Add(time.Hour)},
		{RunID: "r-1", ComputedAt: t0},
	}
	res, err := Page(items, Runs, 0, 2)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "r-3", res.Items[0].RunID)
	assert.Equal(t, "r-1", res.Items[1].RunID)
	assert.True(t, res.HasMore)

	next, err := After(items, Runs, res.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "r-2", next.Items[0].RunID)
	assert.False(t, next.HasMore)
}

func TestBeyondLastPage(t *testing.T) {
	res, err := Page(events(5), Events, 3, 2)
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.False(t, res.HasMore)

	res, err = Page([]evidence.DriftEvent(nil), Events, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.HasMore)
}

func TestInvalidArguments(t *testing.T) {
	_, err := Page(events(3), Events, -1, 2)
	assert.True(t, fault.Is(err, fault.InvalidArgument))

	_, err = Page(events(3), Events, 0, 0)
	assert.True(t, fault.Is(err, fault.InvalidArgument))

	_, err = After(events(3), Events, "!!!", 2)
	assert.True(t, fault.Is(err, fault.InvalidArgument))

	first, err := Page(events(3), Events, 0, 1)
	require.NoError(t, err)
	_, err = After([]evidence.MetricsRun{{RunID: "r"}}, Runs, first.NextCursor, 1)
	assert.True(t, fault.Is(err, fault.InvalidArgument), "an events cursor is not a runs cursor")

	_, err = After(events(1), Events, first.NextCursor, 1)
	assert.True(t, fault.Is(err, fault.InvalidArgument), "cursor item no longer present")
}

func TestPageDoesNotReorderInput(t *testing.T) {
	items := events(4)
	_, err := Page(items, Events, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "ev-0000", items[0].DriftEventID)
}

func TestPagingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ceil(N/S) pages, no gaps, no overlaps", prop.ForAll(
		func(n, size int) bool {
			items := events(n)
			want := (n + size - 1) / size

			seen := make(map[string]int)
			pages := 0
			for index := 0; ; index++ {
				res, err := Page(items, Events, index, size)
				if err != nil {
					return false
				}
				if len(res.Items) == 0 {
					break
				}
				pages++
				for _, e := range res.Items {
					seen[e.DriftEventID]++
				}
				if res.HasMore != (index < want-1) {
					return false
				}
			}
			if pages != want || len(seen) != n {
				return false
			}
			for _, c := range seen {
				if c != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 17),
	))

	properties.Property("cursor walk equals index walk", prop.ForAll(
		func(n, size int) bool {
			items := events(n)
			cursor := ""
			for index := 0; ; index++ {
				byIndex, err := Page(items, Events, index, size)
				if err != nil {
					return false
				}
				byCursor, err := After(items, Events, cursor, size)
				if err != nil || len(byIndex.Items) != len(byCursor.Items) {
					return false
				}
				for i := range byIndex.Items {
					if byIndex.Items[i].DriftEventID != byCursor.Items[i].DriftEventID {
						return false
					}
				}
				if !byCursor.HasMore {
					return !byIndex.HasMore
				}
				cursor = byCursor.NextCursor
			}
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 17),
	))

	properties.TestingRun(t)
}
