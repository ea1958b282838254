package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/niwla23/containerpanel/internal/model"
)

// GetTelegramConfig returns the stored Telegram notifier settings.
func GetTelegramConfig(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"bot_token": getConfigValue(db, model.ConfigKeyTelegramBotToken),
			"chat_id":   getConfigValue(db, model.ConfigKeyTelegramChatID),
		})
	}
}

// UpdateTelegramConfig stores the Telegram notifier settings. A restart
// is required for the bot to pick them up.
func UpdateTelegramConfig(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			BotToken string `json:"bot_token"`
			ChatID   string `json:"chat_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := setConfigValue(db, model.ConfigKeyTelegramBotToken, input.BotToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store config"})
			return
		}
		if err := setConfigValue(db, model.ConfigKeyTelegramChatID, input.ChatID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store config"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "telegram config updated, restart to apply"})
	}
}

func getConfigValue(db *gorm.DB, key string) string {
	var config model.Config
	db.Where("key = ?", key).First(&config)
	return config.Value
}

func setConfigValue(db *gorm.DB, key, value string) error {
	var config model.Config
	err := db.Where("key = ?", key).First(&config).Error
	if err != nil {
		config = model.Config{Key: key, Value: value}
		return db.Create(&config).Error
	}
	config.Value = value
	return db.Save(&config).Error
}
