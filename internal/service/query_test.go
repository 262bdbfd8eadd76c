package service

import (
	"context"
	"testing"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

func seedBookings(t *testing.T, fx *fixture) (first, second, third model.AppointmentDetail) {
	t.Helper()
	var err error
	if first, err = fx.book(patient, "2026-03-02T09:00:00"); err != nil {
		t.Fatal(err)
	}
	if second, err = fx.book(patient, "2026-03-09T09:30:00"); err != nil {
		t.Fatal(err)
	}
	if third, err = fx.book(other, "2026-03-02T09:30:00"); err != nil {
		t.Fatal(err)
	}
	return first, second, third
}

func ids(rows []model.AppointmentDetail) []uint64 {
	out := make([]uint64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestMyAppointmentsScoping(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	first, second, third := seedBookings(t, fx)

	mine, err := fx.queries.MyAppointments(ctx, patient)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(mine); len(got) != 2 || got[0] != second.ID || got[1] != first.ID {
		t.Fatalf("patient sees %v, want [%d %d]", got, second.ID, first.ID)
	}
	if mine[0].DateTime != "2026-03-09T09:30:00Z" {
		t.Fatalf("date_time = %q", mine[0].DateTime)
	}

	book, err := fx.queries.MyAppointments(ctx, doctor)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(book); len(got) != 3 || got[0] != second.ID || got[1] != third.ID || got[2] != first.ID {
		t.Fatalf("doctor sees %v", got)
	}

	// A doctor user without a profile.
	orphan := model.Identity{UserID: 77, Role: model.RoleDoctor}
	if _, err := fx.queries.MyAppointments(ctx, orphan); KindOf(err) != KindNotFound {
		t.Fatalf("orphan doctor: %v", err)
	}
	if _, err := fx.queries.MyAppointments(ctx, anonymous); KindOf(err) != KindUnauthenticated {
		t.Fatalf("anonymous: %v", err)
	}
}

func TestUpcomingAppointments(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	first, second, _ := seedBookings(t, fx)

	up, err := fx.queries.UpcomingAppointments(ctx, patient, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(up); len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Fatalf("upcoming = %v, want soonest first", got)
	}

	if _, err := fx.lifecycle.Cancel(ctx, patient, first.ID, ""); err != nil {
		t.Fatal(err)
	}
	up, _ = fx.queries.UpcomingAppointments(ctx, patient, 1)
	if got := ids(up); len(got) != 1 || got[0] != second.ID {
		t.Fatalf("upcoming after cancel = %v", got)
	}
}

func TestAppointmentHistory(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	first, second, _ := seedBookings(t, fx)
	if _, err := fx.lifecycle.Cancel(ctx, patient, first.ID, ""); err != nil {
		t.Fatal(err)
	}

	all, err := fx.queries.AppointmentHistory(ctx, patient, HistoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("history = %v", ids(all))
	}
	cancelled, err := fx.queries.AppointmentHistory(ctx, patient, HistoryFilter{Status: "canceled"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(cancelled); len(got) != 1 || got[0] != first.ID {
		t.Fatalf("cancelled history = %v", got)
	}
	page, _ := fx.queries.AppointmentHistory(ctx, patient, HistoryFilter{Limit: 1, Offset: 1})
	if got := ids(page); len(got) != 1 || got[0] != first.ID {
		t.Fatalf("second page = %v, want [%d] after %d", got, first.ID, second.ID)
	}
	if _, err := fx.queries.AppointmentHistory(ctx, patient, HistoryFilter{Status: "lost"}); KindOf(err) != KindInvalidArgument {
		t.Fatalf("bad status filter: %v", err)
	}
}

func TestAppointmentByIDAccess(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	first, _, _ := seedBookings(t, fx)

	for _, id := range []model.Identity{patient, doctor, admin} {
		if _, err := fx.queries.AppointmentByID(ctx, id, first.ID); err != nil {
			t.Fatalf("%v reading: %v", id, err)
		}
	}
	for _, id := range []model.Identity{other, otherDoc} {
		if _, err := fx.queries.AppointmentByID(ctx, id, first.ID); KindOf(err) != KindForbidden {
			t.Fatalf("%v reading: %v", id, err)
		}
	}
	if _, err := fx.queries.AppointmentByID(ctx, admin, 404); KindOf(err) != KindNotFound {
		t.Fatalf("missing: %v", err)
	}
}

func TestDoctorAppointments(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	first, _, third := seedBookings(t, fx)

	day, err := fx.queries.DoctorAppointments(ctx, doctor, drID, &monday)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(day); len(got) != 2 || got[0] != first.ID || got[1] != third.ID {
		t.Fatalf("monday = %v, want time order", got)
	}
	if _, err := fx.queries.DoctorAppointments(ctx, otherDoc, drID, nil); KindOf(err) != KindForbidden {
		t.Fatalf("other doctor: %v", err)
	}
	all, err := fx.queries.DoctorAppointments(ctx, admin, drID, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("admin view: %d rows, %v", len(all), err)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ in, want int }{{0, 10}, {-5, 10}, {1, 1}, {100, 100}, {101, 100}}
	for _, tc := range cases {
		if got := clamp(tc.in, DefaultUpcomingLimit, MaxUpcomingLimit); got != tc.want {
			t.Errorf("clamp(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
