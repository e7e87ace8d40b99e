package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tresorerie/config"
	"tresorerie/models"
	"tresorerie/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

func getClientIP(c *gin.Context) string {
	forwarded := c.GetHeader("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	return c.ClientIP()
}

func Login(c *gin.Context) {
	var input struct {
		Phone    string `json:"phone" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	err := config.UserCollection.FindOne(ctx, bson.M{"phone": input.Phone}).Decode(&user)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := utils.VerifyPassword(user.Password, input.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := utils.GenerateToken(user.ID.Hex(), user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error while generating token"})
		return
	}

	session := models.Session{
		UserID:    user.ID,
		Role:      user.Role,
		IP:        getClientIP(c),
		Device:    c.Request.UserAgent(),
		Timestamp: time.Now(),
	}
	_, err = config.SessionCollection.InsertOne(ctx, session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error recording session"})
		return
	}

	c.SetCookie("token", token, 3600*24, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"userID":   user.ID.Hex(),
		"role":     user.Role,
		"fullName": user.FirstName + " " + user.LastName,
	})
}

// CreateUser registers an admin or finance account. Admin-only route.
func CreateUser(c *gin.Context) {
	var input struct {
		FirstName string `json:"first_name" binding:"required"`
		LastName  string `json:"last_name" binding:"required"`
		Phone     string `json:"phone" binding:"required"`
		Email     string `json:"email"`
		Role      string `json:"role" binding:"required"`
		Password  string `json:"password" binding:"required"`
		Handle    string `json:"handle"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Role != "admin" && input.Role != "finance" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be admin or finance"})
		return
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error while hashing password"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := config.UserCollection.CountDocuments(ctx, bson.M{"phone": input.Phone})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing users"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Un utilisateur avec ce téléphone existe déjà"})
		return
	}

	user := models.User{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
		Email:     input.Email,
		Role:      input.Role,
		Password:  hash,
		Handle:    input.Handle,
		CreatedAt: time.Now(),
	}
	result, err := config.UserCollection.InsertOne(ctx, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       result.InsertedID,
		"role":     user.Role,
		"fullName": user.FirstName + " " + user.LastName,
	})
}
