package repository

import (
	"strings"
	"testing"
)

// TestPageOffset проверяет конвертацию 1-based страницы в offset.
func TestPageOffset(t *testing.T) {
	cases := []struct {
		page, size           int
		wantLimit, wantOffset int
	}{
		{1, 10, 10, 0},
		{2, 10, 10, 10},
		{3, 25, 25, 50},
		{0, 10, 10, 0},  // page < 1 поднимается до 1
		{-5, 10, 10, 0}, // отрицательная страница не даёт отрицательный offset
		{2, 0, 1, 1},    // size < 1 поднимается до 1
	}

	for _, c := range cases {
		limit, offset := PageOffset(c.page, c.size)
		if limit != c.wantLimit || offset != c.wantOffset {
			t.Errorf("PageOffset(%d, %d) = (%d, %d), ожидалось (%d, %d)",
				c.page, c.size, limit, offset, c.wantLimit, c.wantOffset)
		}
	}
}

// TestSubstringPattern проверяет построение ILIKE-шаблона с экранированием.
func TestSubstringPattern(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report", "%report%"},
		{"", "%%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`back\slash`, `%back\\slash%`},
	}

	for _, c := range cases {
		if got := substringPattern(c.in); got != c.want {
			t.Errorf("substringPattern(%q) = %q, ожидалось %q", c.in, got, c.want)
		}
	}
}

// TestListOrder_TotalOrder проверяет, что порядок выдачи тотальный:
// tie-break по id обязателен для стабильной пагинации.
func TestListOrder_TotalOrder(t *testing.T) {
	if !strings.Contains(listOrder, "uploaded_at DESC") {
		t.Error("списки должны сортироваться по uploaded_at DESC")
	}
	if !strings.Contains(listOrder, "id ASC") {
		t.Error("порядок должен включать tie-break по id")
	}
}

// TestFileColumns_MatchesScan проверяет соответствие числа столбцов
// в fileColumns числу полей в scanFileRecord.
func TestFileColumns_MatchesScan(t *testing.T) {
	const scannedFields = 17
	got := len(strings.Split(fileColumns, ","))
	if got != scannedFields {
		t.Errorf("fileColumns содержит %d столбцов, scanFileRecord сканирует %d", got, scannedFields)
	}
}
