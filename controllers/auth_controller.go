package controllers

import (
	"log"
	"net/http"
	"time"

	"go_jobs_backend/middleware"
	"go_jobs_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthController handles operator authentication
type AuthController struct {
	db        *gorm.DB
	jwtSecret string
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB, jwtSecret string) *AuthController {
	return &AuthController{db: db, jwtSecret: jwtSecret}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an operator and issues an API token
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	var op models.OperatorUser
	if err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&op).Error; err != nil {
		log.Printf("Operator login failed for %s: user not found", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	if !op.CheckPassword(req.Password) {
		log.Printf("Operator login failed for %s: invalid password", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := middleware.IssueOperatorToken(ac.jwtSecret, op.Username, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	now := time.Now()
	ac.db.Model(&op).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int((24 * time.Hour).Seconds()),
	})
}
