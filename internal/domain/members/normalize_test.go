package members_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebra552/TgGroopSoft/internal/domain/members"
	"github.com/bebra552/TgGroopSoft/internal/infra/apptime"
)

// panicStatus ведёт себя как неизвестный статус, чтение имени которого падает.
type panicStatus struct {
	*tg.UserStatusOnline
}

func (panicStatus) TypeName() string { panic("broken status") }

func TestNormalizeFullRecord(t *testing.T) {
	t.Parallel()

	wasOnline := int(time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC).Unix())
	u := &tg.User{
		ID:        42,
		Username:  "gopher",
		FirstName: "Иван",
		LastName:  "Петров",
		Phone:     "79990000000",
		Status:    &tg.UserStatusOffline{WasOnline: wasOnline},
		Premium:   true,
		Verified:  true,
	}

	rec := members.Normalize(u)
	assert.Equal(t, members.Record{
		ID:         "42",
		Username:   "gopher",
		FirstName:  "Иван",
		LastName:   "Петров",
		Phone:      "79990000000",
		Status:     apptime.Display(time.Unix(int64(wasOnline), 0)),
		LastOnline: apptime.Display(time.Unix(int64(wasOnline), 0)),
		IsBot:      members.No,
		IsVerified: members.Yes,
		IsScam:     members.No,
		IsPremium:  members.Yes,
	}, rec)
	assert.Len(t, rec.Fields(), len(members.Columns))
	assert.False(t, rec.Degraded())
}

func TestNormalizeStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		status     tg.UserStatusClass
		wantStatus string
		wantLast   string
	}{
		{name: "скрыт", status: nil, wantStatus: members.StatusHidden, wantLast: members.StatusHidden},
		{name: "онлайн", status: &tg.UserStatusOnline{Expires: 1}, wantStatus: members.StatusOnline, wantLast: members.StatusOnline},
		{name: "оффлайн со временем", status: &tg.UserStatusOffline{WasOnline: 1704164645}, wantStatus: apptime.Display(time.Unix(1704164645, 0)), wantLast: apptime.Display(time.Unix(1704164645, 0))},
		{name: "оффлайн без времени", status: &tg.UserStatusOffline{}, wantStatus: members.StatusOffline, wantLast: members.StatusOffline},
		{name: "недавно", status: &tg.UserStatusRecently{}, wantStatus: members.StatusRecently, wantLast: members.StatusRecently},
		{name: "на неделе", status: &tg.UserStatusLastWeek{}, wantStatus: members.StatusLastWeek, wantLast: members.StatusLastWeek},
		{name: "в месяце", status: &tg.UserStatusLastMonth{}, wantStatus: members.StatusLastMonth, wantLast: members.StatusLastMonth},
		{name: "давно", status: &tg.UserStatusEmpty{}, wantStatus: members.StatusLongAgo, wantLast: members.StatusLongAgo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := members.Normalize(&tg.User{ID: 1, Status: tc.status})
			assert.Equal(t, tc.wantStatus, rec.Status)
			assert.Equal(t, tc.wantLast, rec.LastOnline)
		})
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	t.Parallel()

	var nilUser *tg.User
	cases := []struct {
		name   string
		in     tg.UserClass
		wantID string
	}{
		{name: "nil интерфейс", in: nil, wantID: members.Unknown},
		{name: "nil указатель", in: nilUser, wantID: members.Unknown},
		{name: "пустой пользователь", in: &tg.UserEmpty{ID: 7}, wantID: "7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var rec members.Record
			require.NotPanics(t, func() { rec = members.Normalize(tc.in) })
			assert.Equal(t, tc.wantID, rec.ID)
			assert.True(t, rec.Degraded())
			for i, v := range rec.Fields() {
				if members.Columns[i] == "Username" ||
					members.Columns[i] == "First Name" || members.Columns[i] == "Last Name" {
					continue
				}
				assert.NotEmpty(t, v, members.Columns[i])
			}
		})
	}
}

func TestNormalizePanicFallsBackToReduced(t *testing.T) {
	t.Parallel()

	u := &tg.User{
		ID:        99,
		Username:  "broken",
		FirstName: "A",
		LastName:  "B",
		Phone:     "123",
		Status:    panicStatus{&tg.UserStatusOnline{}},
	}

	var rec members.Record
	require.NotPanics(t, func() { rec = members.Normalize(u) })
	assert.Equal(t, members.Record{
		ID:         "99",
		Username:   "broken",
		FirstName:  "A",
		LastName:   "B",
		Phone:      members.Unknown,
		Status:     members.Unknown,
		LastOnline: members.Unknown,
		IsBot:      members.Unknown,
		IsVerified: members.Unknown,
		IsScam:     members.Unknown,
		IsPremium:  members.Unknown,
	}, rec)
}

func TestNormalizeAllKeepsOrderAndReportsProgress(t *testing.T) {
	t.Parallel()

	users := make([]tg.UserClass, 0, 120)
	for i := 1; i <= 120; i++ {
		users = append(users, &tg.User{ID: int64(i)})
	}

	var calls [][2]int
	recs := members.NormalizeAll(users, 50, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})

	require.Len(t, recs, 120)
	for i, r := range recs {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		require.NoError(t, err)
		assert.Equal(t, users[i].(*tg.User).ID, id)
	}
	assert.Equal(t, [][2]int{{50, 120}, {100, 120}, {120, 120}}, calls)
}
