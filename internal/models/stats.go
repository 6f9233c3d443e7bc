package models

import "time"

// StatsGroupBy описывает варианты группировки периодов.
type StatsGroupBy string

const (
	StatsGroupNone  StatsGroupBy = "none"
	StatsGroupDay   StatsGroupBy = "day"
	StatsGroupWeek  StatsGroupBy = "week"
	StatsGroupMonth StatsGroupBy = "month"
)

// StatsFilter задает временной интервал и группировку.
type StatsFilter struct {
	From    time.Time
	To      time.Time
	GroupBy StatsGroupBy
}

// RedemptionStats сводка по выигрышам за период.
type RedemptionStats struct {
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	Redemptions   int           `json:"redemptions"`
	TotalValue    float64       `json:"total_value"`
	UniquePlayers int           `json:"unique_players"`
	Prizes        []PrizeStat   `json:"prizes"`
	Periods       []StatsPeriod `json:"periods,omitempty"`
	Codes         CodeCounters  `json:"codes"`
	GeneratedAt   time.Time     `json:"generated_at"`
	GroupBy       string        `json:"group_by,omitempty"`
}

// PrizeStat сколько раз выпал приз и на какую сумму.
type PrizeStat struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// StatsPeriod агрегаты по одному периоду.
type StatsPeriod struct {
	Period      string  `json:"period"`
	Redemptions int     `json:"redemptions"`
	TotalValue  float64 `json:"total_value"`
}

// CodeCounters состояние выпущенных кодов на момент отчёта.
type CodeCounters struct {
	Issued    int `json:"issued"`
	Active    int `json:"active"`
	Exhausted int `json:"exhausted"`
	Revoked   int `json:"revoked"`
	Expired   int `json:"expired"`
}
