package services

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"treasure-chest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqSource отдаёт заранее заданные значения; Int63n(n) для v < n возвращает v.
type seqSource struct {
	vals []int64
	i    int
}

func (s *seqSource) Int63() int64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func (s *seqSource) Seed(int64) {}

func twoPrizePool() []models.WeightedPrize {
	return []models.WeightedPrize{
		{Prize: models.Prize{Label: "A", Value: 1}, Weight: 80},
		{Prize: models.Prize{Label: "B", Value: 2}, Weight: 20},
	}
}

func TestPrizeSelector_FixedPrizeIsDeterministic(t *testing.T) {
	selector, err := NewPrizeSelector(DefaultPrizePool(), rand.NewSource(1))
	require.NoError(t, err)

	code := &models.Code{FixedPrize: &models.Prize{Label: "Vale R$20", Value: 20}}
	for i := 0; i < 100; i++ {
		assert.Equal(t, models.Prize{Label: "Vale R$20", Value: 20}, selector.Select(code))
	}
}

func TestPrizeSelector_FixedPrizeWithoutLabel(t *testing.T) {
	selector, err := NewPrizeSelector(DefaultPrizePool(), nil)
	require.NoError(t, err)

	prize := selector.Select(&models.Code{FixedPrize: &models.Prize{Value: 2.5}})
	assert.Equal(t, "R$2,50", prize.Label)
	assert.Equal(t, 2.5, prize.Value)
}

func TestPrizeSelector_BoundaryBelongsToNextEntry(t *testing.T) {
	src := &seqSource{vals: []int64{0, 79, 80, 99}}
	selector, err := NewPrizeSelector(twoPrizePool(), src)
	require.NoError(t, err)

	code := &models.Code{}
	assert.Equal(t, "A", selector.Select(code).Label)
	assert.Equal(t, "A", selector.Select(code).Label)
	assert.Equal(t, "B", selector.Select(code).Label, "r equal to the cumulative weight of A must select B")
	assert.Equal(t, "B", selector.Select(code).Label)
}

func TestPrizeSelector_WeightedDistribution(t *testing.T) {
	selector, err := NewPrizeSelector(twoPrizePool(), rand.NewSource(42))
	require.NoError(t, err)

	counts := map[string]int{}
	for i := 0; i < 100000; i++ {
		counts[selector.Select(nil).Label]++
	}

	require.NotZero(t, counts["B"])
	ratio := float64(counts["A"]) / float64(counts["B"])
	assert.InDelta(t, 4.0, ratio, 0.2)
}

func TestPrizeSelector_ConcurrentSelect(t *testing.T) {
	selector, err := NewPrizeSelector(DefaultPrizePool(), rand.NewSource(7))
	require.NoError(t, err)

	labels := map[string]bool{}
	for _, p := range DefaultPrizePool() {
		labels[p.Label] = true
	}

	var wg sync.WaitGroup
	results := make(chan string, 800)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				results <- selector.Select(&models.Code{}).Label
			}
		}()
	}
	wg.Wait()
	close(results)

	for label := range results {
		assert.True(t, labels[label], "unexpected label %q", label)
	}
}

func TestNewPrizeSelector_InvalidPool(t *testing.T) {
	_, err := NewPrizeSelector(nil, nil)
	assert.Error(t, err)

	_, err = NewPrizeSelector([]models.WeightedPrize{{Prize: models.Prize{Label: "zero"}, Weight: 0}}, nil)
	assert.Error(t, err)

	_, err = NewPrizeSelector([]models.WeightedPrize{{Prize: models.Prize{Label: "neg", Value: -1}, Weight: 1}}, nil)
	assert.Error(t, err)
}

func TestPrizeSelector_PoolIsCopied(t *testing.T) {
	pool := twoPrizePool()
	selector, err := NewPrizeSelector(pool, nil)
	require.NoError(t, err)

	pool[0].Label = "mutated"
	assert.Equal(t, "A", selector.Pool()[0].Label)
}

func TestDefaultPrizePool(t *testing.T) {
	pool := DefaultPrizePool()
	require.Len(t, pool, 7)

	total := 0
	for _, p := range pool {
		total += p.Weight
		assert.Equal(t, FormatPrizeLabel(p.Value), p.Label)
	}
	assert.Equal(t, 215, total)
}

func TestParsePrizePool(t *testing.T) {
	pool, err := ParsePrizePool("R$0,50|0.5|80; |10|5;Camiseta|0|1;")
	require.NoError(t, err)
	require.Len(t, pool, 3)

	assert.Equal(t, models.WeightedPrize{Prize: models.Prize{Label: "R$0,50", Value: 0.5}, Weight: 80}, pool[0])
	assert.Equal(t, "R$10,00", pool[1].Label)
	assert.Equal(t, 0.0, pool[2].Value)
}

func TestParsePrizePool_Errors(t *testing.T) {
	for _, raw := range []string{
		"",
		"A|1",
		"A|x|1",
		"A|1|x",
		"A|1|0",
		"A|-1|3",
		"A|1|9223372036854775807;B|2|1",
	} {
		_, err := ParsePrizePool(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestNewPrizeSelector_TotalWeightOverflow(t *testing.T) {
	pool := []models.WeightedPrize{
		{Prize: models.Prize{Label: "A", Value: 1}, Weight: math.MaxInt64},
		{Prize: models.Prize{Label: "B", Value: 2}, Weight: 1},
	}
	_, err := NewPrizeSelector(pool, nil)
	assert.Error(t, err)
}

func TestFormatPrizeLabel(t *testing.T) {
	assert.Equal(t, "R$0,50", FormatPrizeLabel(0.5))
	assert.Equal(t, "R$10,00", FormatPrizeLabel(10))
	assert.Equal(t, "R$0,30", FormatPrizeLabel(0.1+0.2))
	assert.Equal(t, "R$0,00", FormatPrizeLabel(0))
}
