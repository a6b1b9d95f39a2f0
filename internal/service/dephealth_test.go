// dephealth_test.go — unit-тесты вычисления health path для HTTP-зависимостей.
package service

import (
	"testing"
)

// TestHealthPath проверяет построение пути проверки из базового URL.
func TestHealthPath(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		suffix   string
		expected string
	}{
		{
			name:     "URL без пути, суффикс Roblox",
			rawURL:   "https://users.roblox.com",
			suffix:   robloxHealthPath,
			expected: "/v1/users/1",
		},
		{
			name:     "завершающий слеш не дублируется",
			rawURL:   "https://users.roblox.com/",
			suffix:   robloxHealthPath,
			expected: "/v1/users/1",
		},
		{
			name:     "префикс прокси сохраняется",
			rawURL:   "http://proxy.local/roblox/",
			suffix:   robloxHealthPath,
			expected: "/roblox/v1/users/1",
		},
		{
			name:     "путь без суффикса",
			rawURL:   "https://discord.com/api/v9/gateway",
			suffix:   "",
			expected: "/api/v9/gateway",
		},
		{
			name:     "пустой путь — корень",
			rawURL:   "https://example.com",
			suffix:   "",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthPath(tt.rawURL, tt.suffix); got != tt.expected {
				t.Errorf("healthPath(%q, %q) = %q, ожидается %q", tt.rawURL, tt.suffix, got, tt.expected)
			}
		})
	}
}

func TestHTTPDependencyOptions_TLS(t *testing.T) {
	plain := httpDependencyOptions("http://localhost:8080", "", 0, false)
	secure := httpDependencyOptions("https://discord.com/api/v9/gateway", "", 0, true)

	if len(secure) != len(plain)+1 {
		t.Errorf("для https ожидается дополнительная TLS-опция: http=%d, https=%d", len(plain), len(secure))
	}
}
