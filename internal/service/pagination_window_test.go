package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

func TestPageWindow(t *testing.T) {
	cases := []struct {
		name    string
		current int
		total   int
		want    []int
	}{
		{"middle", 5, 10, []int{1, 0, 3, 4, 5, 6, 7, 0, 10}},
		{"first", 1, 10, []int{1, 2, 3, 0, 10}},
		{"last", 10, 10, []int{1, 0, 8, 9, 10}},
		{"adjacent_to_edges", 3, 6, []int{1, 2, 3, 4, 5, 6}},
		{"single", 1, 1, []int{1}},
		{"empty", 1, 0, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PageWindow(tc.current, tc.total))
		})
	}
}

func TestBuildPaginationControl(t *testing.T) {
	control := BuildPaginationControl(&activityapi.PaginationInfo{
		CurrentPage: 5, TotalPages: 10, TotalItems: 100, HasPrevPage: true, HasNextPage: true, StartIndex: 41, EndIndex: 50,
	})

	require.True(t, control.Visible)
	require.True(t, control.CanFirst)
	require.True(t, control.CanLast)
	require.Len(t, control.Pages, 9)
	require.True(t, control.Pages[1].Ellipsis)
	require.True(t, control.Pages[4].Current)
	require.Equal(t, 5, control.Pages[4].Number)
}

func TestBuildPaginationControlHiddenForSinglePage(t *testing.T) {
	control := BuildPaginationControl(&activityapi.PaginationInfo{CurrentPage: 1, TotalPages: 1, TotalItems: 3})
	require.False(t, control.Visible)
	require.False(t, control.CanPrev)
	require.False(t, control.CanNext)
}

func TestPageChangeTargetIgnoresCurrentPage(t *testing.T) {
	info := &activityapi.PaginationInfo{CurrentPage: 2, TotalPages: 4}

	_, ok := PageChangeTarget(info, 2)
	require.False(t, ok)
	_, ok = PageChangeTarget(info, 0)
	require.False(t, ok)
	page, ok := PageChangeTarget(info, 3)
	require.True(t, ok)
	require.Equal(t, 3, page)
}
