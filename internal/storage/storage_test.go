package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sales report.csv", "sales_report.csv"},
		{"tab\tname.csv", "tab_name.csv"},
		{"../../etc/passwd", "etcpasswd"},
		{"..\\..\\win.ini", "win.ini"},
		{"a/b/c.csv", "abc.csv"},
		{".hidden", "hidden"},
		{"name..csv", "name.csv"},
		{"C:\\data.csv", "Cdata.csv"},
		{"", "file"},
		{"...", "file"},
		{"/", "file"},
		{"отчёт 2024.xlsx", "отчёт_2024.xlsx"},
		{"nul\x00byte.csv", "nulbyte.csv"},
	}

	for _, tt := range tests {
		got := Sanitize(tt.in)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_IsLocalPathComponent(t *testing.T) {
	inputs := []string{"../x", "..", "a/../../b", "\\\\server\\share", "x/..", " .. / .. "}
	for _, in := range inputs {
		got := Sanitize(in)
		if !filepath.IsLocal(got) || strings.ContainsAny(got, "/\\") {
			t.Errorf("Sanitize(%q) = %q — небезопасный компонент пути", in, got)
		}
	}
}

func TestSanitize_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("я", 80) // 160 байт
	got := Sanitize(long)
	if len(got) > maxNameLen {
		t.Errorf("длина %d превышает %d", len(got), maxNameLen)
	}
	if !strings.HasPrefix(long, got) {
		t.Errorf("обрезка разорвала руну: %q", got)
	}
}

func TestGenerateName_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		name := GenerateName("data set.csv")
		if seen[name] {
			t.Fatalf("повторное имя: %s", name)
		}
		seen[name] = true
		if !strings.HasSuffix(name, "-data_set.csv") {
			t.Errorf("имя должно заканчиваться очищенным именем файла: %s", name)
		}
		if !filepath.IsLocal(name) {
			t.Errorf("имя не является локальным путём: %s", name)
		}
	}
}
