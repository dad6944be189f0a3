package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    Parsed
	}{
		{
			name:    "city district",
			address: "서울특별시 강남구 논현동 203-1",
			want:    Parsed{Region: "서울특별시 강남구", SubDistrict: "논현동", LotNumber: "203-1"},
		},
		{
			name:    "trailing detail ignored",
			address: "서울특별시 관악구 봉천동 1566-10 3층 301호",
			want:    Parsed{Region: "서울특별시 관악구", SubDistrict: "봉천동", LotNumber: "1566-10"},
		},
		{
			name:    "county",
			address: "경기도 양평군 양평읍 123",
			want:    Parsed{Region: "경기도 양평군", SubDistrict: "양평읍", LotNumber: "123"},
		},
		{
			name:    "city with district",
			address: "경기도 성남시 분당구 정자동 178-1",
			want:    Parsed{Region: "경기도 성남시 분당구", SubDistrict: "정자동", LotNumber: "178-1"},
		},
		{
			name:    "extra whitespace",
			address: "  부산광역시   해운대구  우동   1407 ",
			want:    Parsed{Region: "부산광역시 해운대구", SubDistrict: "우동", LotNumber: "1407"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"no district", "서울특별시 논현동 203-1"},
		{"no lot", "서울특별시 강남구 논현동"},
		{"nothing after district", "서울특별시 강남구"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.address)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedAddress))

			var malformed *MalformedAddressError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}
