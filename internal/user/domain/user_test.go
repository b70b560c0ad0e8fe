package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_CanBid(t *testing.T) {
	tests := []struct {
		name string
		user User
		min  int64
		want bool
	}{
		{name: "Enough Points", user: User{Points: 100}, min: 100, want: true},
		{name: "Not Enough Points", user: User{Points: 99}, min: 100, want: false},
		{name: "Banned", user: User{Points: 1000, Banned: true}, min: 0, want: false},
		{name: "No Threshold", user: User{}, min: 0, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.CanBid(tt.min))
		})
	}
}
