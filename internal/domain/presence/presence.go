// Пакет presence — классификация отметок присутствия по корзинам.
// Корзина определяется только тегом, выбранным при вводе. День недели
// даты не используется: отметку четверга нередко вносят в понедельник.
package presence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Bucket — корзина присутствия.
type Bucket string

// Корзины.
const (
	Jeudi    Bucket = "jeudi"
	Dimanche Bucket = "dimanche"
)

// ErrUnknownType — тег отсутствует или не распознан.
var ErrUnknownType = errors.New("неизвестный тип присутствия")

// Entry — исходная отметка.
type Entry struct {
	// Date — календарная дата отметки
	Date time.Time
	// Type — тег, выбранный при вводе (jeudi, dimanche)
	Type string
	// Present — присутствовал ли
	Present bool
}

// Record — классифицированная отметка.
type Record struct {
	Entry
	Bucket Bucket
}

// Classify возвращает корзину по тегу.
func Classify(e Entry) (Bucket, error) {
	return ParseBucket(e.Type)
}

// ParseBucket разбирает тег без учёта регистра и пробелов.
func ParseBucket(tag string) (Bucket, error) {
	switch Bucket(strings.ToLower(strings.TrimSpace(tag))) {
	case Jeudi:
		return Jeudi, nil
	case Dimanche:
		return Dimanche, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

// ClassifyAll классифицирует набор отметок. Первая ошибка прерывает разбор.
func ClassifyAll(entries []Entry) ([]Record, error) {
	out := make([]Record, 0, len(entries))
	for i, e := range entries {
		b, err := Classify(e)
		if err != nil {
			return nil, fmt.Errorf("отметка %d: %w", i, err)
		}
		out = append(out, Record{Entry: e, Bucket: b})
	}
	return out, nil
}

// Split разделяет записи по корзинам. Каждая запись попадает
// ровно в одну корзину.
func Split(records []Record) (jeudi, dimanche []Record) {
	for _, r := range records {
		switch r.Bucket {
		case Jeudi:
			jeudi = append(jeudi, r)
		case Dimanche:
			dimanche = append(dimanche, r)
		}
	}
	return jeudi, dimanche
}
