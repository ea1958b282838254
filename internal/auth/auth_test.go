package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/niwla23/containerpanel/internal/model"
)

func TestCanManage(t *testing.T) {
	user1 := model.User{ID: 1, Username: "user1", Role: model.RoleUser}
	user2 := model.User{ID: 2, Username: "user2", Role: model.RoleUser}
	user3 := model.User{ID: 3, Username: "user3", Role: model.RoleUser}
	admin := model.User{ID: 4, Username: "admin1", Role: model.RoleAdmin}
	staff := model.User{ID: 5, Username: "staff1", Role: model.RoleStaff}

	tests := []struct {
		name         string
		allowedUsers []model.User
		caller       *model.User
		want         bool
	}{
		{"admin can access server with no managers", nil, &admin, true},
		{"admin can access server with normal managers", []model.User{user1, user3}, &admin, true},
		{"staff can access server with no managers", nil, &staff, true},
		{"staff can access server with normal managers", []model.User{user1, user3}, &staff, true},
		{"allowed user can manage", []model.User{user1, user3}, &user1, true},
		{"second allowed user can manage", []model.User{user1, user3}, &user3, true},
		{"not allowed user can not manage", []model.User{user1, user3}, &user2, false},
		{"single member list allows the member", []model.User{user2}, &user2, true},
		{"single member list denies others", []model.User{user2}, &user1, false},
		{"empty list denies all normal users", nil, &user1, false},
		{"nil caller is denied", []model.User{user1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &model.Server{
				ServerID:     "ab123",
				Name:         "unit_testing_test_server",
				AllowedUsers: tt.allowedUsers,
			}
			assert.Equal(t, tt.want, CanManage(server, tt.caller))
		})
	}
}
