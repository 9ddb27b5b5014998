// Package notify builds notification requests and stores them in the
// notifications outbox. Delivery happens in the worker.
package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Kind identifies the event behind a notification.
type Kind string

const (
	KindPayrollApproval Kind = "payroll_approval"
	KindPayrollApproved Kind = "payroll_approved"
	KindPayrollRework   Kind = "payroll_rework"
	KindPayrollPaid     Kind = "payroll_paid"
	KindOneTimePayment  Kind = "one_time_payment"
	KindOneTimeApproved Kind = "one_time_approved"
	KindOneTimeRejected Kind = "one_time_rejected"
	KindOneTimePaid     Kind = "one_time_paid"
)

var titles = map[Kind]string{
	KindPayrollApproval: "Ведомость на согласование",
	KindPayrollApproved: "Ведомость согласована",
	KindPayrollRework:   "Ведомость на доработку",
	KindPayrollPaid:     "Ведомость оплачена",
	KindOneTimePayment:  "Запрос разовой оплаты",
	KindOneTimeApproved: "Разовая оплата согласована",
	KindOneTimeRejected: "Разовая оплата отклонена",
	KindOneTimePaid:     "Разовая оплата выплачена",
}

// Title returns the human title of a kind.
func (k Kind) Title() string {
	if t, ok := titles[k]; ok {
		return t
	}
	return string(k)
}

// Request is a single notification addressed to one user.
type Request struct {
	UserID   int64
	Kind     Kind
	Title    string
	Message  string
	EntityID int64
	Link     string
}

// Notification is a stored outbox row.
type Notification struct {
	Request
	ID          int64
	IsRead      bool
	DeliveredAt *string
}

// SheetLink points the UI at a payroll sheet.
func SheetLink(id int64) string {
	return fmt.Sprintf("#/payroll-sheet?id=%d", id)
}

// OneTimeLink points the UI at the one-time payment list.
const OneTimeLink = "#/one-time-pay"

var printer = message.NewPrinter(language.Russian)

// Money renders an amount the way ru-RU users read it, e.g. "64 000".
func Money(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Fanout addresses one message to several users, skipping duplicates and zero ids.
func Fanout(userIDs []int64, base Request) []Request {
	seen := make(map[int64]struct{}, len(userIDs))
	out := make([]Request, 0, len(userIDs))
	for _, id := range userIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r := base
		r.UserID = id
		out = append(out, r)
	}
	return out
}

// SheetSubmitted builds the director message for a submitted sheet.
func SheetSubmitted(sheetID int64, title string, totalPayout float64) Request {
	return Request{
		Kind:     KindPayrollApproval,
		Title:    KindPayrollApproval.Title(),
		Message:  fmt.Sprintf("%s — к выплате %s ₽", title, Money(totalPayout)),
		EntityID: sheetID,
		Link:     SheetLink(sheetID),
	}
}

// SheetDecision builds the creator message for approve, rework and pay.
// For rework the detail is the director comment.
func SheetDecision(kind Kind, sheetID int64, title, detail string) Request {
	detail = strings.TrimSpace(detail)
	msg := title
	switch {
	case kind == KindPayrollRework && detail == "":
		msg = "Требуется доработка"
	case kind == KindPayrollRework:
		msg = detail
	case detail != "":
		msg = title + ": " + detail
	}
	return Request{Kind: kind, Title: kind.Title(), Message: msg, EntityID: sheetID, Link: SheetLink(sheetID)}
}

// OneTimeRequested builds the director message for a new one-time request.
func OneTimeRequested(id int64, requester, employee string, amount float64, reason string) Request {
	return Request{
		Kind:     KindOneTimePayment,
		Title:    KindOneTimePayment.Title(),
		Message:  fmt.Sprintf("%s запрашивает %s ₽ для %s: %s", nonEmpty(requester, "Сотрудник"), Money(amount), employee, reason),
		EntityID: id,
		Link:     OneTimeLink,
	}
}

// OneTimeDecision builds the requester message for a one-time decision.
func OneTimeDecision(kind Kind, id int64, employee string, amount float64, comment string) Request {
	msg := fmt.Sprintf("%s ₽ для %s", Money(amount), employee)
	switch kind {
	case KindOneTimeApproved:
		msg += " — согласовано"
	case KindOneTimeRejected:
		msg += " — отклонено"
	case KindOneTimePaid:
		msg += " — выплачено"
	}
	if comment = strings.TrimSpace(comment); comment != "" {
		msg += ". " + comment
	}
	return Request{Kind: kind, Title: kind.Title(), Message: msg, EntityID: id, Link: OneTimeLink}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
