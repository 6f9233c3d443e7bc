package services

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"treasure-chest/internal/models"

	"github.com/shopspring/decimal"
)

// PrizeSelector выбирает приз: фиксированный приз кода или взвешенный розыгрыш по пулу.
type PrizeSelector struct {
	mu    sync.Mutex
	rng   *rand.Rand
	pool  []models.WeightedPrize
	total int64
}

// NewPrizeSelector создаёт селектор. При src == nil используется источник от текущего времени.
func NewPrizeSelector(pool []models.WeightedPrize, src rand.Source) (*PrizeSelector, error) {
	if err := ValidatePrizePool(pool); err != nil {
		return nil, err
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}

	var total int64
	for _, p := range pool {
		total += int64(p.Weight)
	}

	copied := make([]models.WeightedPrize, len(pool))
	copy(copied, pool)

	return &PrizeSelector{
		rng:   rand.New(src),
		pool:  copied,
		total: total,
	}, nil
}

// Select возвращает приз для кода. chestIndex на выбор не влияет.
func (s *PrizeSelector) Select(code *models.Code) models.Prize {
	if code != nil && code.FixedPrize != nil {
		prize := *code.FixedPrize
		if strings.TrimSpace(prize.Label) == "" {
			prize.Label = FormatPrizeLabel(prize.Value)
		}
		return prize
	}

	s.mu.Lock()
	r := s.rng.Int63n(s.total)
	s.mu.Unlock()

	return s.pick(r)
}

// pick возвращает первый элемент, чей накопленный вес строго больше r.
// Значение r, равное накопленному весу элемента i, относится к элементу i+1.
func (s *PrizeSelector) pick(r int64) models.Prize {
	var cumulative int64
	for _, p := range s.pool {
		cumulative += int64(p.Weight)
		if cumulative > r {
			return p.Prize
		}
	}
	return s.pool[len(s.pool)-1].Prize
}

// Pool возвращает копию пула призов.
func (s *PrizeSelector) Pool() []models.WeightedPrize {
	out := make([]models.WeightedPrize, len(s.pool))
	copy(out, s.pool)
	return out
}

// DefaultPrizePool пул призов по умолчанию.
func DefaultPrizePool() []models.WeightedPrize {
	return []models.WeightedPrize{
		{Prize: models.Prize{Label: "R$0,50", Value: 0.5}, Weight: 80},
		{Prize: models.Prize{Label: "R$1,00", Value: 1}, Weight: 50},
		{Prize: models.Prize{Label: "R$2,00", Value: 2}, Weight: 30},
		{Prize: models.Prize{Label: "R$3,00", Value: 3}, Weight: 20},
		{Prize: models.Prize{Label: "R$4,00", Value: 4}, Weight: 20},
		{Prize: models.Prize{Label: "R$5,00", Value: 5}, Weight: 10},
		{Prize: models.Prize{Label: "R$10,00", Value: 10}, Weight: 5},
	}
}

// ParsePrizePool разбирает пул из строки вида "label|value|weight;label|value|weight".
// Пустая подпись заменяется денежным форматом значения.
func ParsePrizePool(raw string) ([]models.WeightedPrize, error) {
	var pool []models.WeightedPrize

	for i, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("prize entry %d: expected label|value|weight", i+1)
		}

		value, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("prize entry %d: invalid value: %w", i+1, err)
		}
		weight, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("prize entry %d: invalid weight: %w", i+1, err)
		}

		amount := value.Round(2).InexactFloat64()
		label := strings.TrimSpace(parts[0])
		if label == "" {
			label = FormatPrizeLabel(amount)
		}

		pool = append(pool, models.WeightedPrize{
			Prize:  models.Prize{Label: label, Value: amount},
			Weight: weight,
		})
	}

	if err := ValidatePrizePool(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// ValidatePrizePool проверяет, что пул непуст, веса положительны, а значения неотрицательны.
func ValidatePrizePool(pool []models.WeightedPrize) error {
	if len(pool) == 0 {
		return fmt.Errorf("prize pool is empty")
	}
	var total int64
	for _, p := range pool {
		if p.Weight <= 0 {
			return fmt.Errorf("prize %q: weight must be positive", p.Label)
		}
		if p.Value < 0 {
			return fmt.Errorf("prize %q: value must be non-negative", p.Label)
		}
		if int64(p.Weight) > math.MaxInt64-total {
			return fmt.Errorf("prize pool total weight overflows")
		}
		total += int64(p.Weight)
	}
	return nil
}

// FormatPrizeLabel форматирует сумму в реалах: 5 -> "R$5,00".
func FormatPrizeLabel(value float64) string {
	fixed := decimal.NewFromFloat(value).StringFixed(2)
	return "R$" + strings.Replace(fixed, ".", ",", 1)
}

func roundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
