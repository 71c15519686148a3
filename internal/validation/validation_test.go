package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Month string `json:"month" validate:"month"`
	Name  string `json:"name" validate:"notblank"`
	Score int    `json:"score" validate:"gte=0,lte=4"`
	Role  string `json:"role" validate:"omitempty,role"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name      string
		in        sample
		wantErr   bool
		wantField string
	}{
		{name: "корректно", in: sample{Month: "2024-01", Name: "x", Score: 4}},
		{name: "некорректный месяц", in: sample{Month: "2024-1", Name: "x"}, wantErr: true, wantField: "month"},
		{name: "пустое имя", in: sample{Month: "2024-01", Name: "  "}, wantErr: true, wantField: "name"},
		{name: "значение вне диапазона", in: sample{Month: "2024-01", Name: "x", Score: 5}, wantErr: true, wantField: "score"},
		{name: "неизвестная роль", in: sample{Month: "2024-01", Name: "x", Role: "bishop"}, wantErr: true, wantField: "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Struct() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Struct() error = %v, хотели ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("ошибка %q не упоминает поле %q", err, tt.wantField)
			}
		})
	}
}

func TestVar(t *testing.T) {
	if err := Var("month", "2024-02", "month"); err != nil {
		t.Errorf("Var() error = %v", err)
	}
	if err := Var("month", "2024-13", "month"); !errors.Is(err, ErrValidation) {
		t.Errorf("Var() error = %v, хотели ErrValidation", err)
	}
}

func TestStruct_FieldErrors(t *testing.T) {
	err := Struct(sample{Month: "2024-13", Name: " ", Score: 9})
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("Struct() error = %T, хотели FieldErrors", err)
	}
	got := fe.Map()
	for _, field := range []string{"month", "name", "score"} {
		if got[field] == "" {
			t.Errorf("нет сообщения для поля %q: %v", field, got)
		}
	}
	if len(got) != 3 {
		t.Errorf("полей = %d, ожидается 3: %v", len(got), got)
	}
}
