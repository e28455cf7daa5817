package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/goodpass/goodpass_backend/config"
	"github.com/goodpass/goodpass_backend/controllers"
	"github.com/goodpass/goodpass_backend/middleware"
	"github.com/goodpass/goodpass_backend/repositories"
	"github.com/goodpass/goodpass_backend/routes"
	"github.com/goodpass/goodpass_backend/services"
	"github.com/goodpass/goodpass_backend/utils"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis
	config.ConnectRedis()

	defer config.CloseRedis()

	// Connect to database
	client := config.ConnectDB()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	customValidator := &CustomValidator{validator: validator.New()}
	e.Validator = customValidator

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.GlobalCORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeadersWithConfig(middleware.SecurityConfig{
		AllowedDomains: []string{"*"},
		AllowInlineJS:  false,
	}))

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Goodpass Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	e.Use(httpsRedirect())
	e.OPTIONS("/*", middleware.PreflightHandler())

	// Initialize repositories
	otpRepo := repositories.NewOTPRepository(client)
	reportRepo := repositories.NewReportRepository(client)

	// Initialize services
	otpService := services.NewOTPService(otpRepo, config.GetRedisClient())
	repaymentService := services.NewRepaymentService(reportRepo, utils.NewLocalFileStore())

	// Initialize controllers
	authController := controllers.NewAuthController(client, otpService)
	reportController := controllers.NewReportController(reportRepo)
	repaymentController := controllers.NewRepaymentController(repaymentService)

	// Register routes
	routes.RegisterAuthRoutes(e, client, authController)
	routes.RegisterReportRoutes(e, reportController, repaymentController)

	// Background maintenance
	go otpService.StartCleanupRoutine()
	go middleware.CleanupBlacklist()

	// Ensure uploads directories exist
	if err := utils.InitializeStorage(); err != nil {
		log.Fatalf("Failed to initialize upload storage: %v", err)
	}
	e.Static("/uploads", "uploads")

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}

func httpsRedirect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Forwarded-Proto") == "http" {
				return c.Redirect(301, "https://"+c.Request().Host+c.Request().RequestURI)
			}
			return next(c)
		}
	}
}
