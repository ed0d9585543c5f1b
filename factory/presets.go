package factory

import (
	"encoding/json"
	"strconv"
)

// MonthlyChitJSON returns an open chit template where each member pays
// amount/members every month for months months.
func MonthlyChitJSON(name string, amount int64, members, months int, startDate string) string {
	return mustTemplate(ChitJSON{
		Name:             name,
		Description:      "Monthly chit scheme",
		Amount:           json.Number(itoa(amount)),
		DurationInMonths: months,
		TotalMembers:     members,
		StartDate:        startDate,
		Status:           "open",
	})
}

// PooledChitJSON returns a running chit whose pool total differs from the
// principal, with its own commission rate.
func PooledChitJSON(name string, amount, total int64, members, months int, startDate, rate string) string {
	return mustTemplate(ChitJSON{
		Name:             name,
		Description:      "Pooled chit with negotiated commission",
		Amount:           json.Number(itoa(amount)),
		TotalAmount:      json.Number(itoa(total)),
		DurationInMonths: months,
		TotalMembers:     members,
		StartDate:        startDate,
		Status:           "running",
		CommissionRate:   json.Number(rate),
	})
}

func mustTemplate(cj ChitJSON) string {
	b, err := json.Marshal(cj)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
