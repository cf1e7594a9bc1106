package rail

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "SRT", want: KindSRT},
		{in: " ktx ", want: KindKTX},
		{in: "korail", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseKind(%q)=(%q,%v) want (%q, err=%v)", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestPassengersValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      Passengers
		wantErr bool
	}{
		{name: "single adult", in: Passengers{Adult: 1}},
		{name: "mixed", in: Passengers{Adult: 2, Child: 1, Toddler: 1}},
		{name: "nine total", in: Passengers{Adult: 5, Senior: 4}},
		{name: "empty", in: Passengers{}, wantErr: true},
		{name: "ten total", in: Passengers{Adult: 5, Child: 5}, wantErr: true},
		{name: "bucket over max", in: Passengers{Adult: 10}, wantErr: true},
		{name: "negative", in: Passengers{Adult: 2, Child: -1}, wantErr: true},
	}
	for _, tc := range cases {
		err := tc.in.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate()=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrPassengers) {
			t.Fatalf("%s: error does not wrap ErrPassengers: %v", tc.name, err)
		}
	}
}

func TestPassengersAggregate(t *testing.T) {
	t.Parallel()

	got := Passengers{Adult: 1, Child: 2, Disability46: 1}.Aggregate()
	if got != (Passengers{Adult: 4}) {
		t.Fatalf("Aggregate()=%+v want 4 adults", got)
	}
	if got := (Passengers{}).Aggregate(); got.Adult != 1 {
		t.Fatalf("Aggregate() of empty must be one adult, got %+v", got)
	}
}

func TestNewError_Retryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want bool
	}{
		{CodeSoldOut, true},
		{CodeSearchNoResults, true},
		{CodeStandbyNotAvailable, true},
		{CodeDuplicate, false},
		{CodeReserveFailed, false},
		{CodeSessionExpired, false},
		{CodeSearchInvalidStation, false},
	}
	for _, tc := range cases {
		if got := NewError(tc.code, "", "").Retryable; got != tc.want {
			t.Fatalf("Retryable(%s)=%v want %v", tc.code, got, tc.want)
		}
	}
}

func TestAsError_Wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("reserve: %w", NewError(CodeSoldOut, "", ""))
	re, ok := AsError(err)
	if !ok || re.Code != CodeSoldOut {
		t.Fatalf("AsError()=(%v,%v)", re, ok)
	}
	if re.Message != Message(CodeSoldOut) {
		t.Fatalf("default message not applied: %q", re.Message)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  *Error
		want Code
	}{
		{"search bad station", ClassifySearch("출발역이 올바르지 않습니다"), CodeSearchInvalidStation},
		{"search other", ClassifySearch("조회 결과가 없습니다"), CodeSearchNoResults},
		{"reserve sold out", ClassifyReserve("잔여석없음"), CodeSoldOut},
		{"reserve sold out 2", ClassifyReserve("매진되었습니다"), CodeSoldOut},
		{"reserve duplicate", ClassifyReserve("이미 예약된 열차"), CodeDuplicate},
		{"reserve other", ClassifyReserve("unknown"), CodeReserveFailed},
		{"standby unavailable", ClassifyStandby("예약대기 불가"), CodeStandbyNotAvailable},
		{"standby none", ClassifyStandby("대기 좌석이 없습니다"), CodeStandbyNotAvailable},
		{"standby duplicate", ClassifyStandby("중복 신청"), CodeDuplicate},
		{"standby other", ClassifyStandby("boom"), CodeStandbyFailed},
		{"pay card", ClassifyPayment("카드번호 오류"), CodePaymentCard},
		{"pay password", ClassifyPayment("비밀번호 오류"), CodePaymentPassword},
		{"pay other", ClassifyPayment("timeout"), CodePaymentFailed},
	}
	for _, tc := range cases {
		if tc.got.Code != tc.want {
			t.Fatalf("%s: code=%s want=%s", tc.name, tc.got.Code, tc.want)
		}
	}

	if d := ClassifyReserve("unknown").Details(); d["original_error"] != "unknown" {
		t.Fatalf("unclassified reserve must keep original_error, got %v", d)
	}
}

type stubConnector struct{ k Kind }

func (s stubConnector) Kind() Kind { return s.k }
func (s stubConnector) Login(context.Context, string, string) (Client, UserInfo, error) {
	return nil, UserInfo{}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(stubConnector{k: KindSRT}, stubConnector{k: KindKTX})

	if _, err := r.Connector(KindKTX); err != nil {
		t.Fatalf("Connector(KTX): %v", err)
	}
	if _, err := r.Connector("ITX"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != KindKTX || kinds[1] != KindSRT {
		t.Fatalf("Kinds()=%v", kinds)
	}
}

func TestReportQueue(t *testing.T) {
	t.Parallel()

	ReportQueue(context.Background(), QueueStatus{Waiting: 3})

	ch := make(chan QueueStatus, 1)
	ctx := WithQueue(context.Background(), ch)
	ReportQueue(ctx, QueueStatus{Waiting: 3})
	ReportQueue(ctx, QueueStatus{Waiting: 2})

	got := <-ch
	if got.Waiting != 3 {
		t.Fatalf("got %+v want waiting=3", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("second update should be dropped, got %+v", extra)
	default:
	}
}

func TestStations(t *testing.T) {
	t.Parallel()

	srt := Stations(KindSRT)
	if len(srt) == 0 || srt[0] != "수서" {
		t.Fatalf("unexpected SRT stations: %v", srt)
	}
	srt[0] = "mutated"
	if Stations(KindSRT)[0] != "수서" {
		t.Fatalf("Stations must return a copy")
	}
	if len(Stations("ITX")) != 0 {
		t.Fatalf("unknown kind must have no stations")
	}
}
