package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/bbang93/macro-api/cmd/internal/rail"
)

const testMessage = "<b>🔔 테스트 알림</b>\n\n" +
	"기차 예매 매크로 알림이 정상적으로 설정되었습니다.\n" +
	"예매 성공 시 이 채팅으로 알림을 받게 됩니다."

func reservationMessage(r rail.Reservation, standby bool) string {
	kind := "예매"
	if standby {
		kind = "예약대기"
	}
	number := r.ReservationNumber
	if number == "" {
		number = "N/A"
	}
	paid := "미결제"
	if r.IsPaid {
		paid = "결제완료"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>🎉 %s 성공!</b>\n\n", kind)
	fmt.Fprintf(&b, "<b>예약번호:</b> <code>%s</code>\n", esc(number))
	fmt.Fprintf(&b, "<b>열차:</b> %s %s\n", esc(r.TrainName), esc(r.TrainNumber))
	fmt.Fprintf(&b, "<b>구간:</b> %s → %s\n", esc(r.DepStation), esc(r.ArrStation))
	fmt.Fprintf(&b, "<b>출발:</b> %s\n", formatDateTime(r.DepDate, r.DepTime))
	fmt.Fprintf(&b, "<b>도착:</b> %s\n", formatClock(r.ArrTime))
	fmt.Fprintf(&b, "<b>좌석수:</b> %d석\n", r.SeatCount)
	fmt.Fprintf(&b, "<b>금액:</b> %s원\n", groupThousands(r.TotalCost))
	fmt.Fprintf(&b, "<b>결제상태:</b> %s", paid)
	if r.PaymentDeadline != "" {
		fmt.Fprintf(&b, "\n\n<b>결제기한:</b> %s", esc(r.PaymentDeadline))
	}
	if standby {
		b.WriteString("\n\n⏳ <i>예약대기 상태입니다. 좌석 배정 시 SMS로 안내됩니다.</i>")
	}
	return b.String()
}

func failureMessage(departure, arrival, reason string, attempts int) string {
	return fmt.Sprintf("<b>❌ 매크로 실패</b>\n\n"+
		"<b>구간:</b> %s → %s\n"+
		"<b>시도 횟수:</b> %d회\n"+
		"<b>실패 원인:</b> %s\n\n"+
		"매크로가 종료되었습니다.",
		esc(departure), esc(arrival), attempts, esc(reason))
}

func esc(s string) string { return html.EscapeString(s) }

// formatDateTime renders YYYYMMDD and HHMMSS as "YYYY.MM.DD HH:MM".
func formatDateTime(date, clock string) string {
	if len(date) < 8 {
		return "N/A"
	}
	out := date[:4] + "." + date[4:6] + "." + date[6:8]
	if len(clock) >= 4 {
		out += " " + clock[:2] + ":" + clock[2:4]
	}
	return out
}

func formatClock(clock string) string {
	if len(clock) < 4 {
		return esc(clock)
	}
	return clock[:2] + ":" + clock[2:4]
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
