package utils

import (
	"math"
	"testing"
)

func TestRoundToLotSize(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		lotSize float64
		want    float64
	}{
		{"round down basic", 0.123456, 0.001, 0.123},
		{"round down 1.999", 1.999, 0.01, 1.99},
		{"whole lot", 100.5, 1.0, 100.0},
		{"exact multiple", 0.5, 0.1, 0.5},
		{"smaller than lot", 0.0005, 0.001, 0.0},
		{"zero lot size returns value", 1.2345, 0, 1.2345},
		{"negative lot size returns value", 1.2345, -1, 1.2345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToLotSize(tt.value, tt.lotSize)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RoundToLotSize(%v, %v) = %v, want %v", tt.value, tt.lotSize, got, tt.want)
			}
		})
	}
}

func TestQuantizeOrderAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		lotSize float64
		minQty  float64
		want    float64
	}{
		{"normal quantization", 1.2345, 0.001, 0.01, 1.234},
		{"below min qty gives zero", 0.005, 0.001, 0.01, 0},
		{"rounds to zero", 0.0009, 0.001, 0, 0},
		{"no min qty", 0.002, 0.001, 0, 0.002},
		{"exactly min qty", 0.01, 0.001, 0.01, 0.01},
		{"negative amount gives zero", -1.0, 0.001, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantizeOrderAmount(tt.amount, tt.lotSize, tt.minQty)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("QuantizeOrderAmount(%v, %v, %v) = %v, want %v",
					tt.amount, tt.lotSize, tt.minQty, got, tt.want)
			}
		})
	}
}

func TestCalculateSpread(t *testing.T) {
	tests := []struct {
		name      string
		priceHigh float64
		priceLow  float64
		want      float64
	}{
		{"one percent", 101.0, 100.0, 1.0},
		{"fraction of percent", 25050, 25000, 0.2},
		{"zero low price", 100.0, 0, 0},
		{"equal prices", 100.0, 100.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSpread(tt.priceHigh, tt.priceLow)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateSpread(%v, %v) = %v, want %v", tt.priceHigh, tt.priceLow, got, tt.want)
			}
		})
	}
}

func TestCalculateCycleReturn(t *testing.T) {
	tests := []struct {
		name  string
		rates []float64
		fees  []float64
		want  float64
	}{
		{
			name:  "profitable triangle without fees",
			rates: []float64{1.0 / 100.0, 50.0, 2.02}, // 1 USDT -> 0.01 A -> 0.5 B -> 1.01 USDT
			fees:  []float64{0, 0, 0},
			want:  1.0,
		},
		{
			name:  "fees eat the edge",
			rates: []float64{1.0 / 100.0, 50.0, 2.0}, // break-even без комиссий
			fees:  []float64{0.001, 0.001, 0.001},
			want:  (math.Pow(0.999, 3) - 1) * 100,
		},
		{
			name:  "mismatched lengths",
			rates: []float64{1.0, 2.0},
			fees:  []float64{0},
			want:  0,
		},
		{
			name:  "non-positive rate",
			rates: []float64{1.0, 0},
			fees:  []float64{0, 0},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCycleReturn(tt.rates, tt.fees)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateCycleReturn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateWeightedAverage(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		weights []float64
		want    float64
	}{
		{"basic vwap", []float64{100, 101, 102}, []float64{10, 20, 10}, 101.0},
		{"single value", []float64{50}, []float64{3}, 50.0},
		{"empty input", nil, nil, 0},
		{"length mismatch", []float64{1, 2}, []float64{1}, 0},
		{"zero weights", []float64{1, 2}, []float64{0, 0}, 0},
		{"negative weight skipped", []float64{100, 200}, []float64{-5, 1}, 200.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateWeightedAverage(tt.values, tt.weights)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateWeightedAverage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Errorf("Clamp(5,0,10) = %v, want 5", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Errorf("Clamp(-1,0,10) = %v, want 0", got)
	}
	if got := Clamp(11, 0, 10); got != 10 {
		t.Errorf("Clamp(11,0,10) = %v, want 10", got)
	}
}

func BenchmarkQuantizeOrderAmount(b *testing.B) {
	for i := 0; i < b.N; i++ {
		QuantizeOrderAmount(1.23456789, 0.001, 0.01)
	}
}
