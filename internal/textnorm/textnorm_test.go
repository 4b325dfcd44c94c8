package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeForNER(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fullwidth letters and digits",
			input:    "ＢＹＤ　汉ＥＶ",
			expected: "BYD 汉EV",
		},
		{
			name:     "chinese punctuation",
			input:    "推荐：比亚迪、吉利。",
			expected: "推荐:比亚迪,吉利.",
		},
		{
			name:     "whitespace collapse",
			input:    "  Tesla   Model\t3\n",
			expected: "Tesla Model 3",
		},
		{
			name:     "fullwidth parens",
			input:    "蔚来（NIO）",
			expected: "蔚来(NIO)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeForNER(tt.input))
		})
	}
}

func TestEntityKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"casefold", "Tesla", "tesla"},
		{"drops parenthetical", "蔚来（NIO）", "蔚来"},
		{"drops ascii parenthetical", "NIO (蔚来)", "nio"},
		{"strips punctuation", "Mercedes-Benz", "mercedesbenz"},
		{"strips whitespace", "Model 3", "model3"},
		{"mixed script", "比亚迪BYD", "比亚迪byd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EntityKey(tt.input))
		})
	}
}

func TestStripBrandSuffix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"chinese corporate", "吉利汽车有限公司", "吉利"},
		{"stacked chinese", "比亚迪汽车公司", "比亚迪"},
		{"liability company", "小鹏汽车有限责任公司", "小鹏"},
		{"english group", "Volkswagen Group", "Volkswagen"},
		{"english inc", "Tesla, Inc", "Tesla"},
		{"no false co strip", "Tesco", "Tesco"},
		{"suffix only survives", "公司", "公司"},
		{"untouched", "BYD", "BYD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripBrandSuffix(tt.input))
		})
	}
}

func TestSameBrand(t *testing.T) {
	assert.True(t, SameBrand("吉利汽车", "吉利"))
	assert.True(t, SameBrand("Volkswagen Group", "volkswagen"))
	assert.False(t, SameBrand("吉利", "比亚迪"))
}
