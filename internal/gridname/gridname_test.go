package gridname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{in: "440.png", want: Name{Key{"440", ""}, ".png"}},
		{in: "440p.png", want: Name{Key{"440", "p"}, ".png"}},
		{in: "440_hero.jpg", want: Name{Key{"440", "_hero"}, ".jpg"}},
		{in: "440_logo.webp", want: Name{Key{"440", "_logo"}, ".webp"}},
		{in: "3141592653p.png", want: Name{Key{"3141592653", "p"}, ".png"}},
		{in: "440_hero", wantErr: true},
		{in: "abc.png", wantErr: true},
		{in: "440x.png", wantErr: true},
		{in: "440.tar.gz", wantErr: true},
		{in: "desktop.ini", wantErr: true},
		{in: ".440.png", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoMatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseSuffix(t *testing.T) {
	n, err := ParseSuffix("2876543210", "_hero.png")
	require.NoError(t, err)
	assert.Equal(t, Key{"2876543210", "_hero"}, n.Key)
	assert.Equal(t, ".png", n.Ext)

	n, err = ParseSuffix("2876543210", ".jpg")
	require.NoError(t, err)
	assert.Equal(t, "", n.Role)

	_, err = ParseSuffix("2876543210", "_hero")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestWithItemID(t *testing.T) {
	n, err := Parse("12p.png")
	require.NoError(t, err)
	assert.Equal(t, "abcp.png", n.WithItemID("abc").String())
	assert.Equal(t, "12p.png", n.String())
}
