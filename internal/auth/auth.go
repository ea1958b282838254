// Package auth decides who may manage which server.
package auth

import "github.com/niwla23/containerpanel/internal/model"

// CanManage reports whether user may manage server: elevated roles may
// manage everything, everyone else needs to be on the server's allowed
// list. Total over any pair; a nil user simply may not.
func CanManage(server *model.Server, user *model.User) bool {
	if user == nil {
		return false
	}
	if user.Elevated() {
		return true
	}
	for _, allowed := range server.AllowedUsers {
		if allowed.ID == user.ID {
			return true
		}
	}
	return false
}
