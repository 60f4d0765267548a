package service

import (
	"errors"
	"math"
	"testing"

	"tradebridge/internal/models"
)

func newTestCalculator(t *testing.T) (*SizingCalculator, *MappingService) {
	t.Helper()
	svc, _, _ := newTestMappingService(t)
	lookup := NewMockAccountLookup(hankoxDemo(), tradeLockerDemo(), binanceFutures())
	return NewSizingCalculator(svc, lookup), svc
}

func TestSizingCalculator_Preview(t *testing.T) {
	tests := []struct {
		name string
		req  SizingRequest
		want float64
	}{
		{
			name: "fixed",
			req:  SizingRequest{PositionSizing: models.SizingFixed, PositionValue: 0.3, SourceVolume: 5},
			want: 0.3,
		},
		{
			name: "percentage 50",
			req:  SizingRequest{PositionSizing: models.SizingPercentage, PositionValue: 50, SourceVolume: 1.25},
			want: 0.62,
		},
		{
			name: "percentage 100",
			req:  SizingRequest{PositionSizing: "Percentage", PositionValue: 100, SourceVolume: 0.3},
			want: 0.3,
		},
		{
			// 1.0 * (5120 / 10250.5) * 100 / 100 = 0.4994...
			name: "risk-based",
			req: SizingRequest{
				SourceAccountID: "hankox-1",
				TargetAccountID: "tradelocker-1",
				PositionSizing:  models.SizingRiskBased,
				PositionValue:   100,
				SourceVolume:    1,
			},
			want: 0.49,
		},
		{
			name: "свой шаг лота",
			req:  SizingRequest{PositionSizing: models.SizingPercentage, PositionValue: 50, SourceVolume: 3, LotStep: 0.1},
			want: 1.5,
		},
		{
			name: "ниже шага лота",
			req:  SizingRequest{PositionSizing: models.SizingPercentage, PositionValue: 1, SourceVolume: 0.5},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, _ := newTestCalculator(t)
			req := tt.req

			res, err := calc.Preview(&req)
			if err != nil {
				t.Fatalf("Preview() error = %v", err)
			}
			if math.Abs(res.TargetVolume-tt.want) > 1e-9 {
				t.Errorf("TargetVolume = %v, want %v", res.TargetVolume, tt.want)
			}
		})
	}
}

func TestSizingCalculator_Clamp(t *testing.T) {
	calc, _ := newTestCalculator(t)

	res, err := calc.Preview(&SizingRequest{
		PositionSizing: models.SizingPercentage,
		PositionValue:  100,
		SourceVolume:   250,
		MaxLots:        20,
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.TargetVolume != 20 || !res.Clamped {
		t.Errorf("TargetVolume = %v clamped = %v, want 20 true", res.TargetVolume, res.Clamped)
	}
}

func TestSizingCalculator_FromMapping(t *testing.T) {
	calc, svc := newTestCalculator(t)

	input := validInput()
	input.PositionSizing = models.SizingFixed
	input.PositionValue = 2
	m, err := svc.Create(input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// настройки связки важнее явных полей запроса
	res, err := calc.Preview(&SizingRequest{MappingID: m.ID, PositionSizing: models.SizingPercentage, SourceVolume: 1})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.PositionSizing != models.SizingFixed || res.TargetVolume != 2 {
		t.Errorf("результат = %+v", res)
	}

	if _, err := calc.Preview(&SizingRequest{MappingID: "missing"}); !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("Preview(missing) error = %v, want NotFoundError", err)
	}
}

func TestSizingCalculator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		req       *SizingRequest
		wantField string
	}{
		{"nil", nil, "source_volume"},
		{"отрицательный объем", &SizingRequest{PositionSizing: models.SizingFixed, PositionValue: 1, SourceVolume: -1}, "source_volume"},
		{"неизвестная стратегия", &SizingRequest{PositionSizing: "kelly", SourceVolume: 1}, "position_sizing"},
		{"вне диапазона", &SizingRequest{PositionSizing: models.SizingFixed, PositionValue: 20, SourceVolume: 1}, "position_value"},
		{"неизвестный счет", &SizingRequest{
			SourceAccountID: "missing",
			TargetAccountID: "tradelocker-1",
			PositionSizing:  models.SizingRiskBased,
			PositionValue:   50,
			SourceVolume:    1,
		}, "source_account_id"},
		{"нулевой equity источника", &SizingRequest{
			SourceAccountID: "binance-1",
			TargetAccountID: "hankox-1",
			PositionSizing:  models.SizingRiskBased,
			PositionValue:   50,
			SourceVolume:    1,
		}, "source_account_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, _ := newTestCalculator(t)

			_, err := calc.Preview(tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Preview() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}
