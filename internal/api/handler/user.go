package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/niwla23/containerpanel/internal/model"
)

func usersFromIDs(ids []uint) []model.User {
	users := make([]model.User, len(ids))
	for i, id := range ids {
		users[i] = model.User{ID: id}
	}
	return users
}

// ListUsers returns all users, for picking allowed users on creation.
func ListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []model.User
		if err := db.Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// CreateUser creates a new panel user.
func CreateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		switch input.Role {
		case "":
			input.Role = model.RoleUser
		case model.RoleAdmin, model.RoleStaff, model.RoleUser:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be 'admin', 'staff' or 'user'"})
			return
		}

		user := model.User{
			Username: input.Username,
			Password: input.Password,
			Role:     input.Role,
		}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// DeleteUser removes a panel user.
func DeleteUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Delete(&model.User{}, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}
